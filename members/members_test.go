package members_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/qsmate/docstore"
	"github.com/jrsteele09/qsmate/docstore/memstore"
	"github.com/jrsteele09/qsmate/members"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

func newService(t *testing.T) (*members.Service, *memstore.MemStore) {
	t.Helper()
	store := memstore.New()
	t.Cleanup(store.Close)
	return members.NewService(store, members.WithNowTime(func() time.Time { return fixedNow })), store
}

func TestService_Add(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	id, err := svc.Add(ctx, members.MemberForm{
		Name:    "  Sam Surveyor ",
		Email:   " Sam@Example.COM ",
		Role:    "Surveyor",
		Company: "QS Ltd",
	})
	require.NoError(t, err)

	doc, err := store.Get(ctx, members.Collection, id)
	require.NoError(t, err)
	require.Equal(t, "Sam Surveyor", doc.Fields["name"])
	require.Equal(t, "sam@example.com", doc.Fields["email"])
	require.Equal(t, members.RoleSurveyor, doc.Fields["role"])
	require.Equal(t, members.StatusActive, doc.Fields["status"])
	require.Equal(t, fixedNow, doc.Fields["joinDate"])
	require.Equal(t, fixedNow, doc.Fields["createdAt"])
	require.Equal(t, fixedNow, doc.Fields["updatedAt"])
}

func TestService_AddDefaultsRole(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	id, err := svc.Add(ctx, members.MemberForm{Name: "Una", Email: "una@example.com"})
	require.NoError(t, err)

	doc, err := store.Get(ctx, members.Collection, id)
	require.NoError(t, err)
	require.Equal(t, members.RoleUser, doc.Fields["role"])
}

func TestService_AddValidation(t *testing.T) {
	tests := []struct {
		name  string
		form  members.MemberForm
		field string
	}{
		{name: "missing name", form: members.MemberForm{Email: "a@example.com"}, field: "name"},
		{name: "missing email", form: members.MemberForm{Name: "A"}, field: "email"},
		{name: "invalid email", form: members.MemberForm{Name: "A", Email: "not-an-email"}, field: "email"},
		{name: "unknown role", form: members.MemberForm{Name: "A", Email: "a@example.com", Role: "client"}, field: "role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newService(t)

			_, err := svc.Add(context.Background(), tt.form)
			var validationErr *members.ValidationError
			require.ErrorAs(t, err, &validationErr)
			require.Contains(t, validationErr.Fields, tt.field)

			docs, err := docstore.Snapshot(context.Background(), store, docstore.Query{Collection: members.Collection})
			require.NoError(t, err)
			require.Empty(t, docs, "invalid forms are not stored")
		})
	}
}

func TestService_ListOrderedByName(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	for _, name := range []string{"Zoe", "Adam", "Mia"} {
		_, err := svc.Add(ctx, members.MemberForm{Name: name, Email: name + "@example.com"})
		require.NoError(t, err)
	}

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "Adam", list[0].Name)
	require.Equal(t, "Mia", list[1].Name)
	require.Equal(t, "Zoe", list[2].Name)
	require.Equal(t, "adam@example.com", list[0].Email)
	require.Equal(t, members.StatusActive, list[0].Status)
	require.Equal(t, fixedNow, list[0].JoinDate)
}
