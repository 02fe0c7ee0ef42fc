package policy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	anon := Anonymous()
	regular := User(1, false)
	adm := User(2, true)

	tests := []struct {
		res                  Resource
		op                   Operation
		anon, regular, admin Decision
	}{
		{ResourceUser, OpCreate, Allow, Allow, Allow},
		{ResourceUser, OpRead, Deny, Deny, Allow},
		{ResourceUser, OpList, Deny, Deny, Allow},
		{ResourceUser, OpUpdate, Deny, Deny, Allow},
		{ResourceUser, OpDelete, Deny, Deny, Allow},
		{ResourceBook, OpRead, Allow, Allow, Allow},
		{ResourceBook, OpList, Allow, Allow, Allow},
		{ResourceBook, OpCreate, Deny, Deny, Allow},
		{ResourceBook, OpUpdate, Deny, Deny, Allow},
		{ResourceBook, OpDelete, Deny, Deny, Allow},
		{ResourceLoan, OpCreate, Deny, Allow, Allow},
		{ResourceLoan, OpList, Deny, Deny, Allow},
		{ResourceLoan, OpListOwn, Deny, Allow, Allow},
		{ResourceLoan, OpRead, Deny, Allow, Allow},
		{ResourceLoan, OpReturn, Deny, Deny, Allow},
		{ResourceLoan, OpUpdate, Deny, Deny, Allow},
		{ResourceLoan, OpDelete, Deny, Deny, Allow},
		{ResourceAuth, OpCreate, Allow, Allow, Allow},
		{ResourceAuth, OpRead, Allow, Allow, Allow},
		{ResourceAuth, OpReadOwn, Deny, Allow, Allow},
		{ResourceAuth, OpDelete, Allow, Allow, Allow},
	}
	for _, tt := range tests {
		t.Run(string(tt.res)+"/"+string(tt.op), func(t *testing.T) {
			assert.Equal(t, tt.anon, Decide(anon, tt.op, tt.res), "anonymous")
			assert.Equal(t, tt.regular, Decide(regular, tt.op, tt.res), "regular user")
			assert.Equal(t, tt.admin, Decide(adm, tt.op, tt.res), "admin")
		})
	}
}

func TestDecide_UnknownPairsDenied(t *testing.T) {
	adm := User(2, true)
	assert.Equal(t, Deny, Decide(adm, OpReturn, ResourceBook))
	assert.Equal(t, Deny, Decide(adm, OpRead, Resource("shelf")))
}

func TestDecide_AdminFlagWithoutAuthenticationIsAnonymous(t *testing.T) {
	forged := Actor{UserID: 9, IsAdmin: true}
	assert.Equal(t, Deny, Decide(forged, OpCreate, ResourceBook))
}

func TestActorContext(t *testing.T) {
	assert.Equal(t, Anonymous(), ActorFrom(context.Background()))

	ctx := WithActor(context.Background(), User(7, false))
	a := ActorFrom(ctx)
	assert.True(t, a.Authenticated)
	assert.True(t, a.Owns(7))
	assert.False(t, a.Owns(8))
}

func TestAuthorize_DistinguishesUnauthenticatedFromForbidden(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/books", nil)
	w := httptest.NewRecorder()
	_, ok := Authorize(w, r, OpCreate, ResourceBook)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r = r.WithContext(WithActor(r.Context(), User(1, false)))
	w = httptest.NewRecorder()
	_, ok = Authorize(w, r, OpCreate, ResourceBook)
	assert.False(t, ok)
	assert.Equal(t, http.StatusForbidden, w.Code)

	r = r.WithContext(WithActor(r.Context(), User(2, true)))
	w = httptest.NewRecorder()
	actor, ok := Authorize(w, r, OpCreate, ResourceBook)
	assert.True(t, ok)
	assert.True(t, actor.IsAdmin)
}
