package correlation_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/applyflow/telemetry/common/correlation"
)

func TestNewGeneratesCorrelationID(t *testing.T) {
	a := correlation.New("GET", "/api/jobs")
	b := correlation.New("GET", "/api/jobs")

	require.NotEmpty(t, a.CorrelationID)
	assert.NotEqual(t, a.CorrelationID, b.CorrelationID)

	_, err := uuid.Parse(a.CorrelationID)
	assert.NoError(t, err)
}

func TestNewWithOptions(t *testing.T) {
	rc := correlation.New("POST", "/api/applications",
		correlation.WithCorrelationID("abc-123"),
		correlation.WithUserID("user-9"),
		correlation.WithIPAddress("10.0.0.1"),
		correlation.WithMetadata(map[string]string{"board": "example"}),
	)

	assert.Equal(t, "abc-123", rc.CorrelationID)
	assert.Equal(t, "POST", rc.Method)
	assert.Equal(t, "/api/applications", rc.Path)
	assert.Equal(t, "user-9", rc.UserID)
	assert.Equal(t, "10.0.0.1", rc.IPAddress)
	assert.Equal(t, "example", rc.Metadatum("board"))
	assert.Empty(t, rc.Metadatum("absent"))
}

func TestWithCorrelationIDIgnoresEmpty(t *testing.T) {
	rc := correlation.New("GET", "/", correlation.WithCorrelationID(""))
	assert.NotEmpty(t, rc.CorrelationID)
}

func TestWithMetadataClones(t *testing.T) {
	md := map[string]string{"k": "v"}
	rc := correlation.New("GET", "/", correlation.WithMetadata(md))

	md["k"] = "mutated"
	assert.Equal(t, "v", rc.Metadatum("k"))
}

func TestDuration(t *testing.T) {
	rc := correlation.New("GET", "/")
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, rc.Duration(), 5*time.Millisecond)
}

func TestContextRoundTrip(t *testing.T) {
	rc := correlation.New("GET", "/api/jobs", correlation.WithCorrelationID("abc-123"))
	ctx := correlation.WithContext(context.Background(), rc)

	got, ok := correlation.FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "abc-123", got.CorrelationID)
	assert.Equal(t, "abc-123", correlation.ID(ctx))
}

func TestFromContextAbsent(t *testing.T) {
	_, ok := correlation.FromContext(context.Background())
	assert.False(t, ok)

	_, ok = correlation.FromContext(nil) //nolint:staticcheck
	assert.False(t, ok)

	assert.Empty(t, correlation.ID(context.Background()))
}

func TestClearFromContext(t *testing.T) {
	rc := correlation.New("GET", "/", correlation.WithCorrelationID("abc-123"))
	ctx := correlation.WithContext(context.Background(), rc)

	cleared := correlation.ClearFromContext(ctx)

	_, ok := correlation.FromContext(cleared)
	assert.False(t, ok)
	assert.Empty(t, correlation.ID(cleared))

	// The original chain is untouched.
	assert.Equal(t, "abc-123", correlation.ID(ctx))
}

func TestContextIsolation(t *testing.T) {
	base := context.Background()
	ctxA := correlation.WithContext(base, correlation.New("GET", "/a", correlation.WithCorrelationID("req-a")))
	ctxB := correlation.WithContext(base, correlation.New("GET", "/b", correlation.WithCorrelationID("req-b")))

	assert.Equal(t, "req-a", correlation.ID(ctxA))
	assert.Equal(t, "req-b", correlation.ID(ctxB))
	assert.Empty(t, correlation.ID(base))
}

func TestToLogFields(t *testing.T) {
	rc := correlation.New("GET", "/api/jobs",
		correlation.WithCorrelationID("abc-123"),
		correlation.WithUserID("user-9"),
	)

	fields := rc.ToLogFields()
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}

	assert.Contains(t, keys, correlation.IDKey)
	assert.Contains(t, keys, "method")
	assert.Contains(t, keys, "path")
	assert.Contains(t, keys, "user_id")
	assert.NotContains(t, keys, "ip_address")
}
