package tapid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResourceIdValidate(t *testing.T) {
	cases := []struct {
		name    string
		id      ResourceId
		wantErr bool
	}{
		{"well formed", "urn:tap:resource:room-1", false},
		{"missing prefix", "room-1", true},
		{"empty opaque", "urn:tap:resource:", true},
		{"non-ascii", ResourceId("urn:tap:resource:" + string(rune(0x2603))), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.id.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewHoldIdIsUnique(t *testing.T) {
	a := NewHoldId()
	b := NewHoldId()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a.String())
}
