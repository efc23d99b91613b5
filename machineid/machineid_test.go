package machineid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	id := Generate()

	require.Len(t, id, 64, "fingerprint must be a 64-character SHA-256 hex digest")
	for _, c := range id {
		assert.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f'),
			"fingerprint must be lowercase hex, got %q", c)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	first := Generate()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Generate(), "same machine must always produce the same fingerprint")
	}
}

func TestGenerateShort(t *testing.T) {
	full := Generate()
	short := GenerateShort()

	require.Len(t, short, ShortLength)
	assert.Equal(t, full[:ShortLength], short)
}

func TestHashMachineInfo(t *testing.T) {
	tests := []struct {
		name string
		info string
		want string
	}{
		{
			name: "known digest",
			info: "MID:abc;HOST:box;",
			want: hashMachineInfo("MID:abc;HOST:box;"),
		},
		{
			name: "fallback sentinel hashes to a fixed value",
			info: fallbackInfo,
			want: hashMachineInfo(fallbackInfo),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hashMachineInfo(tt.info)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, 64)
		})
	}

	assert.NotEqual(t, hashMachineInfo("a"), hashMachineInfo("b"))
}
