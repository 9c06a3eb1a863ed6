package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetOrDefault(t *testing.T) {
	t.Setenv("STOREFRONT_TEST_VALUE", "")
	assert.Equal(t, "fallback", GetOrDefault("STOREFRONT_TEST_VALUE", "fallback"))

	t.Setenv("STOREFRONT_TEST_VALUE", "set")
	assert.Equal(t, "set", GetOrDefault("STOREFRONT_TEST_VALUE", "fallback"))
}

func TestGetDuration(t *testing.T) {
	d, ok := GetDuration("STOREFRONT_TEST_DURATION", 5*time.Second)
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, d)

	t.Setenv("STOREFRONT_TEST_DURATION", "250ms")
	d, ok = GetDuration("STOREFRONT_TEST_DURATION", 5*time.Second)
	assert.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, d)

	t.Setenv("STOREFRONT_TEST_DURATION", "soon")
	d, ok = GetDuration("STOREFRONT_TEST_DURATION", 5*time.Second)
	assert.False(t, ok)
	assert.Equal(t, 5*time.Second, d)
}

func TestGetList(t *testing.T) {
	def := []string{"/login"}
	assert.Equal(t, def, GetList("STOREFRONT_TEST_LIST", def))

	t.Setenv("STOREFRONT_TEST_LIST", " /a, ,/b ,")
	assert.Equal(t, []string{"/a", "/b"}, GetList("STOREFRONT_TEST_LIST", def))

	t.Setenv("STOREFRONT_TEST_LIST", " , ")
	assert.Equal(t, def, GetList("STOREFRONT_TEST_LIST", def))
}
