package ui

// Config contains TUI-specific configuration.
type Config struct {
	// Title shown in the header, usually the script title.
	Title string

	// Participants in roster order. Speakers get colours by position.
	Speakers []string

	MaxWidth  uint `env:"MEETINGVOICE_MAX_WIDTH" envDefault:"100"`
	ShowRoles bool `env:"MEETINGVOICE_SHOW_ROLES" envDefault:"true"`
	Mouse     bool `env:"MEETINGVOICE_MOUSE"`

	// Stay open after the script ends instead of quitting.
	Linger bool `env:"MEETINGVOICE_LINGER" envDefault:"true"`
}
