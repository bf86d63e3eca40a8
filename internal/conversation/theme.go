package conversation

// Theme selects a chat palette
type Theme string

const (
	ThemeGreen       Theme = "green"
	ThemeClassicBlue Theme = "classic_blue"
	ThemeBijoyGreen  Theme = "bijoy_green"
	ThemeLavender    Theme = "lavender_pop"
	ThemeCyberpunk   Theme = "cyberpunk"
	ThemeSunset      Theme = "sunset_glow"
	ThemeMidnight    Theme = "midnight"

	DefaultTheme = ThemeGreen
)

// Palette is the display data for a theme
type Palette struct {
	Theme  Theme  `json:"theme"`
	Name   string `json:"name"`
	Bubble string `json:"bubble"`
	Circle string `json:"circle"`
}

var palettes = []Palette{
	{Theme: ThemeGreen, Name: "Green", Bubble: "bg-green-600", Circle: "from-green-600 to-green-600"},
	{Theme: ThemeClassicBlue, Name: "Classic Blue", Bubble: "bg-gradient-to-br from-[#0084FF] to-[#A033FF]", Circle: "from-[#0084FF] to-[#A033FF]"},
	{Theme: ThemeBijoyGreen, Name: "Bijoy Green", Bubble: "bg-gradient-to-br from-green-600 to-emerald-400", Circle: "from-green-600 to-emerald-400"},
	{Theme: ThemeLavender, Name: "Lavender Pop", Bubble: "bg-gradient-to-br from-[#A033FF] to-[#FF52FF]", Circle: "from-[#A033FF] to-[#FF52FF]"},
	{Theme: ThemeCyberpunk, Name: "Cyberpunk", Bubble: "bg-gradient-to-br from-[#FF00FF] to-[#00FFFF]", Circle: "from-[#FF00FF] to-[#00FFFF]"},
	{Theme: ThemeSunset, Name: "Sunset Glow", Bubble: "bg-gradient-to-br from-[#FF5F6D] to-[#FFC371]", Circle: "from-[#FF5F6D] to-[#FFC371]"},
	{Theme: ThemeMidnight, Name: "Midnight", Bubble: "bg-[#1c1e21]", Circle: "from-[#1c1e21] to-[#3a3b3c]"},
}

// Themes lists every selectable palette
func Themes() []Palette {
	out := make([]Palette, len(palettes))
	copy(out, palettes)
	return out
}

// Valid reports whether t is one of the known themes
func (t Theme) Valid() bool {
	for _, p := range palettes {
		if p.Theme == t {
			return true
		}
	}
	return false
}
