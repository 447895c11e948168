package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Table(t *testing.T) {
	m := NewMatcher(nil)

	tests := []struct {
		input   string
		action  Action
		arg     string
		hasArg  bool
		appName string
	}{
		{"open youtube", ActionOpenApp, "youtube", true, "YouTube"},
		{"Please OPEN WhatsApp", ActionOpenApp, "whatsapp", true, "WhatsApp"},
		{"open x", ActionOpenApp, "twitter", true, "Twitter"},
		{"open maps", ActionOpenApp, "maps", true, "Google Maps"},
		{"open settings", ActionOpenSettings, "", false, ""},
		{"search for cats", ActionWebSearch, "cats", true, ""},
		{"search", ActionWebSearch, "", true, ""},
		{"google the weather", ActionWebSearch, "the weather", true, ""},
		{"play cat video on youtube", ActionVideoSearch, "cat video on youtube", true, ""},
		{"call mom", ActionCall, "mom", true, ""},
		{"call", ActionCall, "", false, ""},
		{"phone dad", ActionCall, "dad", true, ""},
		{"send message to john", ActionSendMessage, "to john", true, ""},
		{"text alice", ActionSendMessage, "alice", true, ""},
		{"take photo", ActionCamera, "", false, ""},
		{"play music", ActionMusic, "", false, ""},
		{"set alarm for 7:30", ActionAlarm, "7:30", true, ""},
		{"wake me up at 6 please", ActionAlarm, "6", true, ""},
		{"set alarm", ActionAlarm, "", false, ""},
		{"create event tomorrow", ActionCalendarEvent, "", false, ""},
		{"what time is it", ActionCurrentTime, "", false, ""},
		{"what date is it", ActionCurrentDate, "", false, ""},
		{"open chrome", ActionBrowser, "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			res := m.Classify(tt.input)
			require.True(t, res.Matched)
			assert.Equal(t, tt.action, res.Command.Action)
			assert.Equal(t, tt.arg, res.Command.Argument)
			assert.Equal(t, tt.hasArg, res.Command.HasArgument)
			assert.Equal(t, tt.appName, res.Command.App.Name)
		})
	}
}

func TestClassify_Unmatched(t *testing.T) {
	m := NewMatcher(nil)
	for _, in := range []string{"banana", "", "   ", "tell me a joke"} {
		res := m.Classify(in)
		assert.False(t, res.Matched, in)
		assert.Equal(t, Unmatched, res)
	}
}

// Earlier rules shadow later ones when keywords overlap.
func TestClassify_FirstRuleWins(t *testing.T) {
	m := NewMatcher(nil)

	cases := map[string]Action{
		// "search" is declared before "call".
		"search how to call a plumber": ActionWebSearch,
		// "play ... video" is declared before "play music".
		"play music video": ActionVideoSearch,
		// "open youtube" is declared before "play ... youtube".
		"open youtube and play something": ActionOpenApp,
		// "call" is declared before "text".
		"call or text bob": ActionCall,
		// "schedule" is declared before "what time".
		"what time should i schedule it": ActionCalendarEvent,
		// "open x" is a literal substring test.
		"open xbox": ActionOpenApp,
	}
	for in, want := range cases {
		assert.Equal(t, want, m.Classify(in).Command.Action, in)
	}
}

func TestClassify_CustomTable(t *testing.T) {
	m := NewMatcher([]Rule{
		{Name: "b", Action: ActionBrowser, Keywords: []string{"go"}},
		{Name: "c", Action: ActionCamera, Keywords: []string{"go"}},
	})
	res := m.Classify("go now")
	require.True(t, res.Matched)
	assert.Equal(t, "b", res.Command.Rule)
	assert.Len(t, m.Rules(), 2)
}

func TestDefaultRules_AppsExist(t *testing.T) {
	for _, r := range DefaultRules() {
		if r.App == "" {
			continue
		}
		app, ok := LookupApp(r.App)
		require.True(t, ok, r.App)
		assert.NotEmpty(t, app.Identifier)
	}
}

func TestLookupApp(t *testing.T) {
	app, ok := LookupApp("youtube")
	require.True(t, ok)
	assert.Equal(t, "YouTube", app.Name)

	app.Name = "Tube"
	again, _ := LookupApp("youtube")
	assert.Equal(t, "YouTube", again.Name, "returned apps are copies")

	_, ok = LookupApp("minesweeper")
	assert.False(t, ok)
}

func TestExtractors(t *testing.T) {
	q, ok := SearchQuery("find my phone")
	assert.True(t, ok)
	assert.Equal(t, "my phone", q)

	q, ok = SearchQuery("nothing here")
	assert.True(t, ok)
	assert.Equal(t, "nothing here", q)

	q, ok = VideoQuery("youtube cats")
	assert.True(t, ok)
	assert.Equal(t, "cats", q)

	_, ok = ContactName("nobody")
	assert.False(t, ok)

	_, ok = AlarmTime("wake me up early")
	assert.False(t, ok)
}
