// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func formatFlag(usage string) cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   usage,
		Value:   "text",
	}
}

func providerFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:    "provider",
		Aliases: []string{"p"},
		Usage:   "Restrict the lookup to these services (repeatable)",
	}
}

func progressFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "progress",
		Usage: "Print per-provider progress to stderr",
	}
}

func idFlag(usage string) cli.Flag {
	return &cli.StringSliceFlag{
		Name:  "id",
		Usage: usage,
	}
}

// queryFlags are the search terms shared by track and download.
func queryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "isrc",
			Usage: "International Standard Recording Code",
		},
		&cli.StringFlag{
			Name:    "title",
			Aliases: []string{"t"},
			Usage:   "Track title",
		},
		&cli.StringFlag{
			Name:    "artist",
			Aliases: []string{"a"},
			Usage:   "Track artist",
		},
		&cli.StringFlag{
			Name:  "album",
			Usage: "Album title, used to rank search candidates",
		},
		&cli.IntFlag{
			Name:  "duration",
			Usage: "Track length in seconds, used as a hint",
		},
		idFlag("Service identifier as service:id (repeatable)"),
	}
}

// setupCommand writes the config file and initializes the record database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create the config file and initialize the record database",
		Action: r.Setup,
	}
}

// providersCommand lists the registered providers.
func providersCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "providers",
		Aliases: []string{"ls"},
		Usage:   "List registered providers and their capabilities",
		Flags:   []cli.Flag{formatFlag("Output format: text or json")},
		Action:  r.Providers,
	}
}

// trackCommand fetches and merges one track.
func trackCommand(r *Runner) *cli.Command {
	flags := append(queryFlags(),
		providerFlag(),
		progressFlag(),
		formatFlag("Output format: text or json"),
		&cli.BoolFlag{
			Name:    "lyrics",
			Aliases: []string{"l"},
			Usage:   "Also fetch lyrics from the lyrics providers",
		},
		&cli.BoolFlag{
			Name:    "save",
			Aliases: []string{"s"},
			Usage:   "Store the merged record in the database",
		},
		&cli.BoolFlag{
			Name:  "outcomes",
			Usage: "Print the per-provider outcome summary to stderr",
		},
	)

	return &cli.Command{
		Name:   "track",
		Usage:  "Fetch a track from every provider and merge it into one record",
		Flags:  flags,
		Action: r.Track,
	}
}

// albumCommand fetches and merges one album by service identifiers.
func albumCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "album",
		Usage: "Fetch an album by service identifiers and merge it into one record",
		Flags: []cli.Flag{
			idFlag("Album identifier as service:id (repeatable, at least one)"),
			providerFlag(),
			progressFlag(),
			formatFlag("Output format: text or json"),
		},
		Action: r.Album,
	}
}

// lyricsCommand fetches lyrics without a metadata lookup.
func lyricsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "lyrics",
		Usage: "Fetch lyrics by title and artist",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "title",
				Aliases:  []string{"t"},
				Usage:    "Track title",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "artist",
				Aliases:  []string{"a"},
				Usage:    "Track artist",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "duration",
				Usage: "Track length in seconds, used to pick the right version",
			},
			providerFlag(),
			progressFlag(),
			formatFlag("Output format: text or json"),
		},
		Action: r.Lyrics,
	}
}

// downloadCommand resolves a download URL.
func downloadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "download",
		Usage:  "Resolve a signed download URL for a track",
		Flags:  append(queryFlags(), providerFlag(), progressFlag(), formatFlag("Output format: text or json")),
		Action: r.Download,
	}
}

// recordsCommand lists stored records.
func recordsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "records",
		Usage: "List merged records stored in the database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "isrc",
				Usage: "Only records with this ISRC",
			},
			&cli.StringFlag{
				Name:    "artist",
				Aliases: []string{"a"},
				Usage:   "Only records by this artist",
			},
			&cli.StringFlag{
				Name:  "service",
				Usage: "Only records carrying an identifier for this service",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of records to return",
				Value: 50,
			},
			formatFlag("Output format: text, json or csv"),
			&cli.StringFlag{
				Name:    "export",
				Aliases: []string{"o"},
				Usage:   "Write the output to this file instead of stdout",
			},
		},
		Action: r.Records,
	}
}

// bulkCommand looks up a list of tracks.
func bulkCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "bulk",
		Usage: "Look up every track in a query list",
		Description: "Each line is an ISRC, isrc:<code>, service:id or \"Artist - Title\".\n" +
			"Blank lines and lines starting with # are skipped.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Usage:    "Query list, or - for stdin",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Concurrent lookups (1-10)",
				Value:   4,
			},
			&cli.FloatFlag{
				Name:  "rate",
				Usage: "Lookups started per second, 0 for no limit",
			},
			providerFlag(),
			&cli.BoolFlag{
				Name:    "save",
				Aliases: []string{"s"},
				Usage:   "Store every merged record in the database",
			},
			&cli.StringFlag{
				Name:  "manifest",
				Usage: "Write a JSON manifest of the results to this file",
			},
			&cli.BoolFlag{
				Name:  "progress",
				Usage: "Print per-lookup progress to stderr",
			},
			formatFlag("Output format: text or json"),
		},
		Action: r.Bulk,
	}
}
