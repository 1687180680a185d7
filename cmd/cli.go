package cmd

import (
	"errors"
	"os"

	"lightshow/pkg/build"

	"github.com/spf13/cobra"
)

// Commands.
const (
	CommandPlay    = "play"
	CommandCache   = "cache"
	CommandClient  = "client"
	CommandAudioIn = "audio-in"
	CommandLights  = "lights"
	CommandDevices = "devices"
)

// Options is what the command line asked for. Everything else comes from the
// configuration file.
type Options struct {
	Command    string
	ConfigPath string
	LogLevel   string

	File       string // Play or cache a single song instead of the playlist.
	Playlist   string // Overrides lightshow.playlist_path.
	ReadCache  bool
	Continuous bool
	LightsOn   bool
}

// ParseArgs parses os.Args.
func ParseArgs() (*Options, error) {
	return parseArgs(os.Args[1:])
}

func parseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{ReadCache: true}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.PersistentFlags().StringVarP(&options.ConfigPath, "config", "c", "",
		"Configuration file. Default searches config.yaml and $LIGHTSHOW_HOME/config")
	rootCmd.PersistentFlags().StringVar(&options.LogLevel, "log", "",
		"Log level: DEBUG, INFO, WARNING, ERROR, CRITICAL")

	playCmd := &cobra.Command{
		Use:   CommandPlay,
		Short: "Play the next song from the playlist, or --file, with the light show",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandPlay
			return nil
		},
	}
	playCmd.Flags().StringVarP(&options.File, "file", "f", "", "Song to play instead of the playlist")
	playCmd.Flags().StringVarP(&options.Playlist, "playlist", "p", "", "Playlist to choose the song from")
	playCmd.Flags().BoolVar(&options.ReadCache, "readcache", true, "Replay light timing from the cache when available")
	playCmd.Flags().BoolVar(&options.Continuous, "continuous", false, "Keep playing songs until interrupted")
	playCmd.MarkFlagsMutuallyExclusive("file", "playlist")
	rootCmd.AddCommand(playCmd)

	cacheCmd := &cobra.Command{
		Use:   CommandCache,
		Short: "Create light timing caches without playing audio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandCache
			options.ReadCache = false
			return nil
		},
	}
	cacheCmd.Flags().StringVarP(&options.File, "file", "f", "", "Song to cache instead of the whole playlist")
	cacheCmd.Flags().StringVarP(&options.Playlist, "playlist", "p", "", "Playlist whose songs to cache")
	cacheCmd.MarkFlagsMutuallyExclusive("file", "playlist")
	rootCmd.AddCommand(cacheCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   CommandClient,
		Short: "Follow a light show broadcast by a server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandClient
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   CommandAudioIn,
		Short: "Drive the lights from a live audio input",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandAudioIn
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:       CommandLights + " on|off",
		Short:     "Turn every light on or off",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandLights
			options.LightsOn = args[0] == "on"
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   CommandDevices,
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandDevices
			return nil
		},
	})

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	if options.Command == "" {
		// Help or version was printed.
		return nil, ErrNoCommand
	}
	return options, nil
}

// ErrNoCommand is returned when the arguments only asked for help or the
// version.
var ErrNoCommand = errors.New("no command")
