package accelerator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindNameRoundtrip(t *testing.T) {
	for k := KindVAAPI; k <= KindVideoToolbox; k++ {
		require.NotEmpty(t, k.Name())
		require.Equal(t, k, KindFromName(k.Name()))
	}
	require.Equal(t, KindInvalid, KindFromName("something-else"))
	require.Equal(t, "invalid", KindInvalid.String())
}

func TestVariantSuffix(t *testing.T) {
	require.Equal(t, "cuvid", KindCUDA.VariantSuffix())
	require.Equal(t, "vaapi", KindVAAPI.VariantSuffix())
	require.Equal(t, "videotoolbox", KindVideoToolbox.VariantSuffix())
}
