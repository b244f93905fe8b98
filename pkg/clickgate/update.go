package clickgate

import (
	pkgerrors "github.com/pkg/errors"

	"github.com/smartgate/doorctl/pkg/door"
)

var ErrInvalidHour = pkgerrors.New("hour must be between 0 and 23")

// Update is a partial configuration change. Nil fields are left as is.
type Update struct {
	OpenClicks         *int `json:"open,omitempty"`
	CloseClicks        *int `json:"close,omitempty"`
	DefaultOpenClicks  *int `json:"def_open,omitempty"`
	DefaultCloseClicks *int `json:"def_close,omitempty"`
	TimeMode           *int `json:"mode,omitempty"`
	StartHour          *int `json:"start,omitempty"`
	EndHour            *int `json:"end,omitempty"`
}

// Empty reports whether u changes nothing.
func (u Update) Empty() bool {
	return u.OpenClicks == nil && u.CloseClicks == nil &&
		u.DefaultOpenClicks == nil && u.DefaultCloseClicks == nil &&
		u.TimeMode == nil && u.StartHour == nil && u.EndHour == nil
}

// Apply returns cfg with the valid fields of u applied. Click counts below 1
// and negative mode or hour values are skipped, matching how partial updates
// from the cloud encode "unchanged". Hours above 23 are rejected.
func (u Update) Apply(cfg door.GateConfig) (door.GateConfig, bool, error) {
	for _, h := range []*int{u.StartHour, u.EndHour} {
		if h != nil && *h > 23 {
			return cfg, false, pkgerrors.Wrapf(ErrInvalidHour, "got %d", *h)
		}
	}

	changed := false
	set := func(dst *int, v *int, lowest int) {
		if v != nil && *v >= lowest {
			*dst = *v
			changed = true
		}
	}

	set(&cfg.OpenClicks, u.OpenClicks, 1)
	set(&cfg.CloseClicks, u.CloseClicks, 1)
	set(&cfg.DefaultOpenClicks, u.DefaultOpenClicks, 1)
	set(&cfg.DefaultCloseClicks, u.DefaultCloseClicks, 1)
	set(&cfg.TimeMode, u.TimeMode, 0)
	set(&cfg.StartHour, u.StartHour, 0)
	set(&cfg.EndHour, u.EndHour, 0)

	return cfg, changed, nil
}
