package loaders

import (
	"testing"

	"github.com/alecthomas/assert"
)

func TestFind(t *testing.T) {
	f := &keyFinder{keys: []string{"g1/phi", "g1/rho", "g2/phi-x", "description"}}
	assert.Equal(t, []string{"g1/phi", "g2/phi-x"}, f.Find("phi"))
	assert.Equal(t, []string{"g1/phi"}, f.Find("phi", "g1"))
	assert.Equal(t, 0, len(f.Find("phi", "rho")))
	assert.Equal(t, []string{"g1/phi", "g1/rho", "g2/phi-x", "description"}, f.Find())
	assert.Equal(t, []string{"g1/phi", "g1/rho", "g2/phi-x"}, f.FindAny("phi", "rho"))
	assert.Equal(t, 0, len(f.FindAny()))

	// Keys returns a copy
	keys := f.Keys()
	keys[0] = "x"
	assert.Equal(t, "g1/phi", f.Keys()[0])
}

func TestRefind(t *testing.T) {
	f := &keyFinder{keys: []string{"g1/phi", "g1/rho", "g2/phi-x", "description"}}
	res, err := f.Refind(`^g\d/`, `phi$`)
	assert.NoError(t, err)
	assert.Equal(t, []string{"g1/phi"}, res)

	res, err = f.RefindAny(`^desc`, `rho`)
	assert.NoError(t, err)
	assert.Equal(t, []string{"g1/rho", "description"}, res)

	_, err = f.Refind(`(`)
	assert.Error(t, err)
	_, err = f.RefindAny(`[`)
	assert.Error(t, err)
}

func TestHandoff(t *testing.T) {
	d, err := marshalHandoff(TypeDir, "/tmp/x")
	assert.NoError(t, err)
	assert.Equal(t, `{"type":"directory","path":"/tmp/x"}`, string(d))

	h, err := unmarshalHandoff(d)
	assert.NoError(t, err)
	assert.Equal(t, TypeDir, h.Type)
	assert.Equal(t, "/tmp/x", h.Path)

	_, err = unmarshalHandoff([]byte(`{"type":"directory"}`))
	assert.Error(t, err)
	_, err = unmarshalHandoff([]byte(`not json`))
	assert.Error(t, err)
}
