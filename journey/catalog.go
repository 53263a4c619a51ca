package journey

import (
	"embed"
	"fmt"
	"math/rand"

	"gopkg.in/yaml.v3"
)

// DaysPerWeek is the number of cards in each journey week.
const DaysPerWeek = 7

//go:embed content/*.yaml
var contentFS embed.FS

// Card is the devotional content for a single journey day.
type Card struct {
	Day            int    `yaml:"day" json:"day"`
	Title          string `yaml:"title" json:"title"`
	Verse          string `yaml:"verse" json:"verse"`
	VerseReference string `yaml:"verseReference" json:"verseReference"`
	Devotional     string `yaml:"devotional" json:"devotional"`
	Prayer         string `yaml:"prayer" json:"prayer"`
	Reflection     string `yaml:"reflection" json:"reflection"`
	Activity       string `yaml:"activity" json:"activity"`
}

// Week groups seven cards under a theme.
type Week struct {
	Number int    `yaml:"week" json:"week"`
	Title  string `yaml:"title" json:"title"`
	Days   []Card `yaml:"days" json:"days"`
}

// Scripture is a verse with its reference.
type Scripture struct {
	Text      string `yaml:"text" json:"text"`
	Reference string `yaml:"reference" json:"reference"`
}

// WorshipLink points at an external playlist.
type WorshipLink struct {
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	URL         string `yaml:"url" json:"url"`
}

// Rescue is the content pool behind the urge rescue panel.
type Rescue struct {
	Scriptures    []Scripture   `yaml:"scriptures" json:"scriptures"`
	Prayers       []string      `yaml:"prayers" json:"prayers"`
	Steps         []string      `yaml:"steps" json:"steps"`
	Worship       []WorshipLink `yaml:"worship" json:"worship"`
	Support       []string      `yaml:"support" json:"support"`
	Encouragement struct {
		Scripture `yaml:",inline"`
		Message   string `yaml:"message" json:"message"`
	} `yaml:"encouragement" json:"encouragement"`
}

// RescuePanel is one rendering of the rescue panel with a scripture and prayer picked from the pool.
type RescuePanel struct {
	Scripture     Scripture     `json:"scripture"`
	Prayer        string        `json:"prayer"`
	Steps         []string      `json:"steps"`
	Worship       []WorshipLink `json:"worship"`
	Support       []string      `json:"support"`
	Encouragement Scripture     `json:"encouragement"`
	Message       string        `json:"message"`
}

// Today locates a journey day inside the catalog.
type Today struct {
	Day       int    `json:"day"`
	Week      int    `json:"week"`
	DayInWeek int    `json:"dayInWeek"`
	WeekTitle string `json:"weekTitle"`
	Card      Card   `json:"card"`
	Finished  bool   `json:"finished"`
}

// Catalog is the immutable journey content loaded at startup.
type Catalog struct {
	weeks  []Week
	rescue Rescue
}

// LoadCatalog parses the embedded journey and rescue content.
func LoadCatalog() (*Catalog, error) {
	var doc struct {
		Weeks []Week `yaml:"weeks"`
	}
	if err := decode("content/journey.yaml", &doc); err != nil {
		return nil, err
	}
	var rescue Rescue
	if err := decode("content/rescue.yaml", &rescue); err != nil {
		return nil, err
	}
	for i, w := range doc.Weeks {
		if w.Number != i+1 {
			return nil, fmt.Errorf("journey content: week %d out of order", w.Number)
		}
		if len(w.Days) != DaysPerWeek {
			return nil, fmt.Errorf("journey content: week %d has %d days", w.Number, len(w.Days))
		}
	}
	if len(rescue.Scriptures) == 0 || len(rescue.Prayers) == 0 {
		return nil, fmt.Errorf("rescue content: empty scripture or prayer pool")
	}
	return &Catalog{weeks: doc.Weeks, rescue: rescue}, nil
}

// MustLoadCatalog is LoadCatalog for boot paths; embedded content is validated by tests.
func MustLoadCatalog() *Catalog {
	c, err := LoadCatalog()
	if err != nil {
		panic(err)
	}
	return c
}

func decode(name string, out interface{}) error {
	raw, err := contentFS.ReadFile(name)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// TotalDays is the length of the whole journey.
func (c *Catalog) TotalDays() int { return len(c.weeks) * DaysPerWeek }

// Weeks returns the week list.
func (c *Catalog) Weeks() []Week { return c.weeks }

// Today resolves currentDay into its week and card. Days past the end stay on the final card with Finished set.
func (c *Catalog) Today(currentDay int) Today {
	if currentDay < 1 {
		currentDay = 1
	}
	finished := false
	day := currentDay
	if day > c.TotalDays() {
		day = c.TotalDays()
		finished = true
	}
	week := (day + DaysPerWeek - 1) / DaysPerWeek
	dayInWeek := (day-1)%DaysPerWeek + 1
	w := c.weeks[week-1]
	return Today{
		Day:       currentDay,
		Week:      week,
		DayInWeek: dayInWeek,
		WeekTitle: w.Title,
		Card:      w.Days[dayInWeek-1],
		Finished:  finished,
	}
}

// Rescue returns the full rescue content pool.
func (c *Catalog) Rescue() Rescue { return c.rescue }

// RescuePanel picks a scripture and prayer using rnd, or the first of each when rnd is nil.
func (c *Catalog) RescuePanel(rnd *rand.Rand) RescuePanel {
	si, pi := 0, 0
	if rnd != nil {
		si = rnd.Intn(len(c.rescue.Scriptures))
		pi = rnd.Intn(len(c.rescue.Prayers))
	}
	return RescuePanel{
		Scripture:     c.rescue.Scriptures[si],
		Prayer:        c.rescue.Prayers[pi],
		Steps:         c.rescue.Steps,
		Worship:       c.rescue.Worship,
		Support:       c.rescue.Support,
		Encouragement: c.rescue.Encouragement.Scripture,
		Message:       c.rescue.Encouragement.Message,
	}
}
