package schema_test

import (
	"strings"
	"testing"

	"github.com/pseudomuto/groundskeeper/pkg/parser"
	. "github.com/pseudomuto/groundskeeper/pkg/schema"
	"github.com/stretchr/testify/require"
)

func TestNewObject(t *testing.T) {
	t.Run("view", func(t *testing.T) {
		obj, err := NewObject("CREATE VIEW BeerView AS SELECT ID FROM Beer")
		require.NoError(t, err)
		require.Equal(t, parser.TypeView, obj.Type)
		require.Equal(t, "dbo.beerview", obj.Name)
		require.Equal(t, []string{"dbo.beer"}, obj.Dependencies)
		require.True(t, obj.DependsOn("dbo.beer"))
		require.False(t, obj.DependsOn("dbo.brewery"))
		require.Equal(t, "dbo.beerview|VIEW", obj.Key())
	})

	t.Run("signature is content addressed", func(t *testing.T) {
		a, err := NewObject("CREATE VIEW V AS SELECT 1 AS X")
		require.NoError(t, err)
		b, err := NewObject("CREATE VIEW V AS SELECT 1 AS X")
		require.NoError(t, err)
		c, err := NewObject("CREATE VIEW V AS SELECT 2 AS X")
		require.NoError(t, err)

		require.Equal(t, a.Signature, b.Signature)
		require.NotEqual(t, a.Signature, c.Signature)
		require.True(t, strings.HasPrefix(a.Signature, "h1:"))
	})

	t.Run("comment changes alter the signature", func(t *testing.T) {
		a, err := NewObject("CREATE VIEW V AS SELECT 1 AS X")
		require.NoError(t, err)
		b, err := NewObject("-- touched\nCREATE VIEW V AS SELECT 1 AS X")
		require.NoError(t, err)
		require.NotEqual(t, a.Signature, b.Signature)
	})

	t.Run("unparseable", func(t *testing.T) {
		_, err := NewObject("TRUNCATE TABLE Beer")
		require.Error(t, err)
	})
}

func TestSplitOwnedName(t *testing.T) {
	owner, name, err := SplitOwnedName("dbo.beer:pk_beer")
	require.NoError(t, err)
	require.Equal(t, "dbo.beer", owner)
	require.Equal(t, "pk_beer", name)

	_, _, err = SplitOwnedName("dbo.beer")
	require.Error(t, err)

	_, _, err = SplitOwnedName("dbo.beer:")
	require.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	require.Equal(t, Fingerprint("x"), Fingerprint("x"))
	require.NotEqual(t, Fingerprint("x"), Fingerprint("y"))
	require.True(t, strings.HasPrefix(Fingerprint("x"), "h1:"))
	require.True(t, strings.HasSuffix(Fingerprint("x"), "="))
}
