package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; device, provider,
// and server changes require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PhrasesChanged: the termination phrase set differs.
	PhrasesChanged bool

	// TimingChanged: any session timeout or delay differs.
	TimingChanged bool

	// ActivitiesChanged: quotes, prompts, or activity audio paths differ.
	ActivitiesChanged bool
}

// Any reports whether the diff carries at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.PhrasesChanged || d.TimingChanged || d.ActivitiesChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.Equal(old.Session.TerminationPhrases, new.Session.TerminationPhrases) {
		d.PhrasesChanged = true
	}

	if timingOf(old) != timingOf(new) {
		d.TimingChanged = true
	}

	if old.Activities.MeditationAudioPath != new.Activities.MeditationAudioPath ||
		old.Activities.SystemPrompt != new.Activities.SystemPrompt ||
		!slices.Equal(old.Activities.Quotes, new.Activities.Quotes) {
		d.ActivitiesChanged = true
	}

	return d
}

// timing is the comparable subset of SessionConfig tracked by [Diff].
type timing struct {
	silence, nudge, wakeSilence Duration
	preDelay, postDelay, guard  Duration
	fuzzy                       float64
	nudgeAudio                  string
}

func timingOf(c *Config) timing {
	return timing{
		silence:     c.Session.SilenceTimeout,
		nudge:       c.Session.NudgeTimeout,
		wakeSilence: c.Session.WakeSilenceTimeout,
		preDelay:    c.Session.NudgePreDelay,
		postDelay:   c.Session.NudgePostDelay,
		guard:       c.Session.GuardDelay,
		fuzzy:       c.Session.FuzzyThreshold,
		nudgeAudio:  c.Session.NudgeAudioPath,
	}
}
