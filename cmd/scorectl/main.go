package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"maze-scores/internal/client"
	"maze-scores/internal/constants"
	"maze-scores/internal/domain"
	"maze-scores/internal/repository"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		logger.Fatal().Err(err).Msg("scorectl failed")
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:   "scorectl",
		Usage:  "manage maze scores through the score service",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Usage:   "score service base URL",
				Value:   "http://localhost:8080",
				EnvVars: []string{"SCORE_SVC_URL"},
			},
		},
		Commands: []*cli.Command{
			addCommand(),
			getCommand(),
			listCommand(),
			deleteCommand(),
			importCommand(),
		},
	}
}

func scoreClient(c *cli.Context, opts ...client.Option) *client.ScoreClient {
	return client.New(c.String("url"), opts...)
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "add or update a score",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "maze", Required: true},
			&cli.StringFlag{Name: "team", Required: true},
			&cli.StringFlag{Name: "game", Required: true},
			&cli.IntFlag{Name: "round"},
			&cli.IntFlag{Name: "moves"},
			&cli.IntFlag{Name: "backtracks"},
			&cli.IntFlag{Name: "bonus"},
			&cli.StringFlag{Name: "result", Value: string(domain.ResultInProgress)},
		},
		Action: func(c *cli.Context) error {
			score, err := domain.NewScore(c.String("maze"), c.String("team"), c.String("game"), c.Int("round"))
			if err != nil {
				return err
			}
			result, err := domain.ParseGameResult(c.String("result"))
			if err != nil {
				return err
			}
			score.MoveCount = c.Int("moves")
			score.BacktrackCount = c.Int("backtracks")
			score.BonusPoints = c.Int("bonus")
			score.GameResult = result

			inserted, err := scoreClient(c).Save(c.Context, score)
			if err != nil {
				return err
			}
			status := "Score Updated"
			if inserted {
				status = "Score Inserted"
			}
			return printJSON(c, client.StatusResponse{Status: status, ScoreKey: score.ScoreKey()})
		},
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "show one score",
		ArgsUsage: "<scoreKey>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("get needs exactly one scoreKey")
			}
			score, err := scoreClient(c).Get(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			return printJSON(c, score)
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list scores, optionally filtered",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "key"},
			&cli.StringFlag{Name: "team"},
			&cli.StringFlag{Name: "maze"},
		},
		Action: func(c *cli.Context) error {
			scores, err := scoreClient(c).List(c.Context, repository.Filter{
				ScoreKey: c.String("key"),
				TeamID:   c.String("team"),
				MazeID:   c.String("maze"),
			})
			if err != nil {
				return err
			}
			return printJSON(c, scores)
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "delete one score",
		ArgsUsage: "<scoreKey>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "password", EnvVars: []string{"DELETE_PASSWORD"}},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("delete needs exactly one scoreKey")
			}
			n, err := scoreClient(c, client.WithDeletePassword(c.String("password"))).Delete(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			return printJSON(c, client.StatusResponse{Status: "ok", Count: n})
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "upsert every score in a JSON array file",
		ArgsUsage: "<file.json>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "concurrency", Value: constants.ImportConcurrency},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("import needs exactly one file")
			}
			data, err := os.ReadFile(c.Args().First())
			if err != nil {
				return err
			}
			var scores []domain.Score
			if err := json.Unmarshal(data, &scores); err != nil {
				return fmt.Errorf("invalid score file: %w", err)
			}

			summary, err := scoreClient(c).Import(c.Context, scores, c.Int("concurrency"))
			if err != nil {
				return err
			}
			return printJSON(c, summary)
		},
	}
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
