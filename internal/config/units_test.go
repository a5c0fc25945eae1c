package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationScalar(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Std())
	assert.Equal(t, "1m30s", d.String())

	require.NoError(t, d.UnmarshalText([]byte("7d")))
	assert.Equal(t, 7*24*time.Hour, d.Std())

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestDurationJSON(t *testing.T) {
	out, err := json.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))

	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"2w"`), &d))
	assert.Equal(t, 14*24*time.Hour, d.Std())

	// Bare numbers are nanoseconds, decoded through the underlying int64.
	require.NoError(t, json.Unmarshal([]byte(`1000000000`), &d))
	assert.Equal(t, time.Second, d.Std())
}

func TestByteSizeScalar(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("64KB")))
	assert.Equal(t, int64(64*1024), b.Bytes())
	assert.Equal(t, "64KB", b.String())

	require.NoError(t, b.UnmarshalText([]byte("188")))
	assert.Equal(t, int64(188), b.Bytes())

	assert.Error(t, b.UnmarshalText([]byte("not-a-size")))
}

func TestByteSizeJSON(t *testing.T) {
	out, err := json.Marshal(ByteSize(5 * 1024 * 1024))
	require.NoError(t, err)
	assert.Equal(t, `"5MB"`, string(out))

	var b ByteSize
	require.NoError(t, json.Unmarshal([]byte(`"1.5MB"`), &b))
	assert.Equal(t, int64(1572864), b.Bytes())

	require.NoError(t, json.Unmarshal([]byte(`1024`), &b))
	assert.Equal(t, int64(1024), b.Bytes())
}
