package vocab

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the top-level structure of a vocabulary YAML file.
//
// Example:
//
//	commands:
//	  - id: next_slide
//	    phrase: "next slide"
//	    aliases: ["next", "slide next"]
//	    action: slide.next
//	  - id: close_show
//	    phrase: "close slide show"
//	    threshold: 0.75
//	    action: show.close
type File struct {
	Commands []CommandDefinition `yaml:"commands"`
}

// LoadFile reads and validates a vocabulary YAML file from disk.
func LoadFile(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: open %q: %w", path, err)
	}
	defer f.Close()

	v, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("vocab: load %q: %w", path, err)
	}
	return v, nil
}

// LoadFromReader parses vocabulary YAML from r and validates the result.
// Useful in tests where vocabularies are constructed from string literals.
func LoadFromReader(r io.Reader) (*Vocabulary, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch typos
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("vocab: decode yaml: %w", err)
	}
	return Load(file.Commands)
}

// Default returns the stock presentation-control vocabulary. It mirrors the
// spoken forms the system shipped with, including common clipped variants
// heard from real speakers ("open slide", "close side show").
func Default() *Vocabulary {
	v, err := Load(defaultCommands())
	if err != nil {
		// The built-in table is fixed; failing to load it is a bug.
		panic(err)
	}
	return v
}

func defaultCommands() []CommandDefinition {
	return []CommandDefinition{
		{
			ID:      "next_slide",
			Phrase:  "next slide",
			Aliases: []string{"next", "slide next", "go next"},
			Action:  ActionSlideNext,
		},
		{
			ID:      "back_slide",
			Phrase:  "back slide",
			Aliases: []string{"back", "previous", "previous slide", "slide back", "go back"},
			Action:  ActionSlidePrevious,
		},
		{
			ID:        "open_slideshow",
			Phrase:    "open slide show",
			Aliases:   []string{"start slide show", "start presentation", "open slide", "open side show", "f5"},
			Threshold: 0.75,
			Action:    ActionShowOpen,
		},
		{
			ID:        "close_slideshow",
			Phrase:    "close slide show",
			Aliases:   []string{"stop slide show", "end presentation", "close slide", "close side show", "exit slideshow"},
			Threshold: 0.75,
			Action:    ActionShowClose,
		},
		{
			ID:      "help_menu",
			Phrase:  "help menu",
			Aliases: []string{"help", "show help"},
			Action:  ActionHelp,
		},
		{
			ID:        "stop_program",
			Phrase:    "stop program",
			Aliases:   []string{"stop listening", "quit program"},
			Threshold: 0.8,
			Action:    ActionStop,
		},
		{
			ID:      "caption_on",
			Phrase:  "caption on",
			Aliases: []string{"start caption", "enable caption"},
			Action:  ActionCaptionOn,
		},
		{
			ID:      "caption_off",
			Phrase:  "caption off",
			Aliases: []string{"stop caption", "disable caption"},
			Action:  ActionCaptionOff,
		},
		{
			ID:      "show_analytics",
			Phrase:  "show analytics",
			Aliases: []string{"session stats", "show statistics"},
			Action:  ActionStats,
		},
	}
}
