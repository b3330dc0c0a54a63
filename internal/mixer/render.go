package mixer

import "fmt"

// RenderMode tells the engine how a source is fitted into its slot.
type RenderMode string

const (
	RenderModeScale RenderMode = "scale"
	RenderModeCrop  RenderMode = "crop"
	RenderModePad   RenderMode = "pad"
)

func (m RenderMode) Valid() bool {
	switch m {
	case RenderModeScale, RenderModeCrop, RenderModePad:
		return true
	default:
		return false
	}
}

// RenderOptions places a secondary producer in the mixed output.
// Width and Height of zero keep the source size.
type RenderOptions struct {
	X      int        `json:"x"`
	Y      int        `json:"y"`
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Z      int        `json:"z"`
	Mode   RenderMode `json:"mode"`
}

func (o RenderOptions) withDefaults() RenderOptions {
	if o.Mode == "" {
		o.Mode = RenderModeScale
	}
	return o
}

func (o RenderOptions) Validate() error {
	if !o.withDefaults().Mode.Valid() {
		return fmt.Errorf("%w: invalid render mode %q", ErrInvalidArgument, o.Mode)
	}
	if o.X < 0 || o.Y < 0 {
		return fmt.Errorf("%w: negative render position (%d, %d)", ErrInvalidArgument, o.X, o.Y)
	}
	if o.Width < 0 || o.Height < 0 {
		return fmt.Errorf("%w: negative render size %dx%d", ErrInvalidArgument, o.Width, o.Height)
	}
	return nil
}
