//go:build integration

package sink

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Sternrassler/lalafo-feed/pkg/listing"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgres starts a Postgres container and returns its DSN
func setupPostgres(t *testing.T) (string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "feed",
			"POSTGRES_PASSWORD": "feed",
			"POSTGRES_DB":       "feed",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://feed:feed@%s:%s/feed?sslmode=disable", host, port.Port())
	return dsn, func() { container.Terminate(ctx) }
}

func TestPostgresOutput_Integration(t *testing.T) {
	dsn, cleanup := setupPostgres(t)
	defer cleanup()
	ctx := context.Background()

	out, err := NewPostgresOutput(ctx, PostgresConfig{DSN: dsn, Table: "listings", RunID: "run-1"})
	require.NoError(t, err)
	defer out.Close()

	require.NoError(t, out.Begin(ctx))
	require.NoError(t, out.Begin(ctx), "Begin must be idempotent")

	require.NoError(t, out.Append(ctx, 1, []listing.Listing{
		{ID: "101", Title: "Sofa", IsVIP: true, ImagesCount: 2},
		{ID: "102", Title: "Chair"},
	}))
	require.NoError(t, out.Append(ctx, 2, []listing.Listing{{ID: "201", Title: "Lamp"}}))

	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, `SELECT page, position, id, is_vip, images_count FROM listings WHERE run_id = $1 ORDER BY page, position`, "run-1")
	require.NoError(t, err)

	type row struct {
		Page, Position int
		ID             string
		IsVIP          bool
		Images         int
	}
	var got []row
	for rows.Next() {
		var r row
		require.NoError(t, rows.Scan(&r.Page, &r.Position, &r.ID, &r.IsVIP, &r.Images))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())

	assert.Equal(t, []row{
		{Page: 1, Position: 0, ID: "101", IsVIP: true, Images: 2},
		{Page: 1, Position: 1, ID: "102"},
		{Page: 2, Position: 0, ID: "201"},
	}, got)
	assert.Contains(t, out.Location(), "(listings)")
}

func TestNewPostgresOutput_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := NewPostgresOutput(ctx, PostgresConfig{DSN: "postgres://localhost/x", RunID: "r"})
	assert.EqualError(t, err, "postgres table is required")

	_, err = NewPostgresOutput(ctx, PostgresConfig{DSN: "postgres://localhost/x", Table: "t"})
	assert.EqualError(t, err, "run id is required")
}
