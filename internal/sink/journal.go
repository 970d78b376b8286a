package sink

import (
	"strconv"

	"github.com/twiced-technology-gmbh/installwatch/internal/journal"
	"github.com/twiced-technology-gmbh/installwatch/internal/logging"
	"github.com/twiced-technology-gmbh/installwatch/internal/resource"
)

// Journal appends every delta to the journal in Dir and logs a summary.
type Journal struct {
	Dir    string
	Logger *logging.Logger
}

// NewJournal returns a Journal writing to dir.
func NewJournal(dir string, logger *logging.Logger) *Journal {
	return &Journal{Dir: dir, Logger: logger}
}

// RegisterResources implements resource.Installer.
func (j *Journal) RegisterResources(scheme string, resources []resource.Resource) {
	entries := make([]journal.Entry, 0, len(resources))
	for _, r := range resources {
		entries = append(entries, entryFor(journal.ActionRegister, r))
	}
	j.append(entries)
	j.Logger.Info("resources registered", map[string]string{
		"scheme": scheme,
		"count":  strconv.Itoa(len(resources)),
	})
}

// UpdateResources implements resource.Installer.
func (j *Journal) UpdateResources(scheme string, toAdd []resource.Resource, toRemove []string) {
	entries := make([]journal.Entry, 0, len(toAdd)+len(toRemove))
	for _, r := range toAdd {
		entries = append(entries, entryFor(journal.ActionAdd, r))
	}
	for _, id := range toRemove {
		entries = append(entries, journal.Entry{Action: journal.ActionRemove, ID: id, URL: resource.URL(id)})
	}
	j.append(entries)
	j.Logger.Info("resources updated", map[string]string{
		"scheme":  scheme,
		"added":   strconv.Itoa(len(toAdd)),
		"removed": strconv.Itoa(len(toRemove)),
	})
}

func (j *Journal) append(entries []journal.Entry) {
	if err := journal.Append(j.Dir, entries...); err != nil {
		j.Logger.Warn("journal append failed", logging.Err(err))
	}
}

func entryFor(action string, r resource.Resource) journal.Entry {
	return journal.Entry{
		Action:   action,
		ID:       r.ID,
		URL:      r.URL,
		Type:     r.Type,
		Priority: r.Priority,
		Digest:   r.Digest,
	}
}
