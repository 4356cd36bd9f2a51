package postgres

import (
	"context"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v2"
)

func TestPrincipalRepository_PrincipalExists(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewPrincipalRepository(mock)

	mock.ExpectQuery(`SELECT EXISTS \(`).
		WithArgs("principal-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.PrincipalExists(context.Background(), "principal-1")
	if err != nil {
		t.Fatalf("PrincipalExists returned error: %v", err)
	}
	if !exists {
		t.Fatalf("expected principal to exist")
	}

	mock.ExpectQuery(`SELECT EXISTS \(`).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err = repo.PrincipalExists(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("PrincipalExists returned error: %v", err)
	}
	if exists {
		t.Fatalf("expected principal to be unknown")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
