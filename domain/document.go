package domain

// Document is the root aggregate persisted as a single JSON file. All five
// collections live and die together; there is no per-entity storage.
type Document struct {
	Tasks         []Task          `json:"tasks"`
	FocusSessions []FocusSession  `json:"focusSessions"`
	Journals      []Journal       `json:"journals"`
	Events        []CalendarEvent `json:"events"`
	Launchpad     []LaunchpadItem `json:"launchpad"`
}

// NewDocument returns an empty document with all collections allocated so it
// marshals to `[]` rather than `null`.
func NewDocument() *Document {
	return &Document{
		Tasks:         []Task{},
		FocusSessions: []FocusSession{},
		Journals:      []Journal{},
		Events:        []CalendarEvent{},
		Launchpad:     []LaunchpadItem{},
	}
}

// TaskByID returns a pointer into Tasks, or nil when absent.
func (d *Document) TaskByID(id string) *Task {
	for i := range d.Tasks {
		if d.Tasks[i].ID == id {
			return &d.Tasks[i]
		}
	}
	return nil
}

// LaunchpadByID returns a pointer into Launchpad, or nil when absent.
func (d *Document) LaunchpadByID(id string) *LaunchpadItem {
	for i := range d.Launchpad {
		if d.Launchpad[i].ID == id {
			return &d.Launchpad[i]
		}
	}
	return nil
}

// LaunchpadByURL returns a pointer to the item with the given URL, or nil.
// URL uniqueness across the collection is enforced by mutation closures,
// which call this before inserting or re-pointing an item.
func (d *Document) LaunchpadByURL(url string) *LaunchpadItem {
	for i := range d.Launchpad {
		if d.Launchpad[i].URL == url {
			return &d.Launchpad[i]
		}
	}
	return nil
}
