package intent

// Action is the kind of side effect a matched command asks for.
type Action string

const (
	ActionOpenApp       Action = "open_app"
	ActionOpenSettings  Action = "open_settings"
	ActionWebSearch     Action = "web_search"
	ActionVideoSearch   Action = "video_search"
	ActionCall          Action = "call"
	ActionSendMessage   Action = "send_message"
	ActionCamera        Action = "camera"
	ActionMusic         Action = "music"
	ActionAlarm         Action = "alarm"
	ActionCalendarEvent Action = "calendar_event"
	ActionCurrentTime   Action = "current_time"
	ActionCurrentDate   Action = "current_date"
	ActionBrowser       Action = "browser"
)

// App identifies an application on the host platform.
type App struct {
	Key        string // spoken name, e.g. "youtube"
	Identifier string // platform package id
	Name       string // display name used in replies
}

// apps is the catalogue of applications the assistant knows how to launch.
// It is never written after init.
var apps = map[string]App{
	"youtube":   {Key: "youtube", Identifier: "com.google.android.youtube", Name: "YouTube"},
	"whatsapp":  {Key: "whatsapp", Identifier: "com.whatsapp", Name: "WhatsApp"},
	"instagram": {Key: "instagram", Identifier: "com.instagram.android", Name: "Instagram"},
	"facebook":  {Key: "facebook", Identifier: "com.facebook.katana", Name: "Facebook"},
	"twitter":   {Key: "twitter", Identifier: "com.twitter.android", Name: "Twitter"},
	"gmail":     {Key: "gmail", Identifier: "com.google.android.gm", Name: "Gmail"},
	"spotify":   {Key: "spotify", Identifier: "com.spotify.music", Name: "Spotify"},
	"netflix":   {Key: "netflix", Identifier: "com.netflix.mediaclient", Name: "Netflix"},
	"maps":      {Key: "maps", Identifier: "com.google.android.apps.maps", Name: "Google Maps"},
	"music":     {Key: "music", Identifier: "com.google.android.music", Name: "Music"},
}

// LookupApp returns the catalogue entry for a spoken app name.
func LookupApp(key string) (App, bool) {
	app, ok := apps[key]
	return app, ok
}

// Extractor pulls the argument of a command out of the normalized input.
// ok is false when the input carries no usable argument.
type Extractor func(input string) (arg string, ok bool)

// Rule is one row of the predicate cascade. A rule matches when the input
// contains any of Keywords and, if Require is set, also any of Require.
type Rule struct {
	Name     string
	Action   Action
	Keywords []string
	Require  []string
	App      string
	Extract  Extractor
}

func openApp(app string, keywords ...string) Rule {
	return Rule{Name: "open " + app, Action: ActionOpenApp, Keywords: keywords, App: app}
}

// DefaultRules returns the assistant's command table. Order is significant:
// the first matching rule wins, so broader keywords shadow later rules.
func DefaultRules() []Rule {
	return []Rule{
		openApp("youtube", "open youtube"),
		openApp("whatsapp", "open whatsapp"),
		openApp("instagram", "open instagram"),
		openApp("facebook", "open facebook"),
		openApp("twitter", "open twitter", "open x"),
		openApp("gmail", "open gmail"),
		openApp("spotify", "open spotify"),
		openApp("netflix", "open netflix"),
		openApp("maps", "open maps"),
		{Name: "open settings", Action: ActionOpenSettings, Keywords: []string{"open settings"}},
		{Name: "web search", Action: ActionWebSearch, Keywords: []string{"search", "google"}, Extract: SearchQuery},
		{Name: "video search", Action: ActionVideoSearch, Keywords: []string{"play"}, Require: []string{"youtube", "video"}, Extract: VideoQuery},
		{Name: "call", Action: ActionCall, Keywords: []string{"call", "phone"}, Extract: ContactName},
		{Name: "send message", Action: ActionSendMessage, Keywords: []string{"send message", "send sms", "text"}, Extract: ContactName},
		{Name: "camera", Action: ActionCamera, Keywords: []string{"camera", "take photo", "take picture"}},
		{Name: "music", Action: ActionMusic, Keywords: []string{"play music", "open music"}},
		{Name: "alarm", Action: ActionAlarm, Keywords: []string{"set alarm", "wake me up"}, Extract: AlarmTime},
		{Name: "calendar event", Action: ActionCalendarEvent, Keywords: []string{"create event", "add calendar", "schedule"}},
		{Name: "current time", Action: ActionCurrentTime, Keywords: []string{"what time", "current time"}},
		{Name: "current date", Action: ActionCurrentDate, Keywords: []string{"what date", "today's date"}},
		{Name: "browser", Action: ActionBrowser, Keywords: []string{"open browser", "open chrome"}},
	}
}
