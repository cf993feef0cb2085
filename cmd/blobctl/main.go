package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/siilo/siilo/cmd/flags"
	"github.com/siilo/siilo/store"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "blobctl",
		Usage: "Read, write and manage blobs across the configured backends",
		Flags: flags.CommonFlags,
		Commands: []*cli.Command{
			{
				Name:      "cat",
				Usage:     "print a blob's content to stdout",
				ArgsUsage: "scheme://path",
				Action:    withStore(runCat),
			},
			{
				Name:      "put",
				Usage:     "store a file (or stdin with -) under a locator",
				ArgsUsage: "scheme://path [file|-]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "content-type",
						Usage: "content type to record on backends that keep one",
					},
				},
				Action: withStore(runPut),
			},
			{
				Name:      "rm",
				Usage:     "delete a blob",
				ArgsUsage: "scheme://path",
				Action:    withStore(runRm),
			},
			{
				Name:      "ls",
				Usage:     "list blobs under a locator prefix",
				ArgsUsage: "scheme://path-prefix",
				Action:    withStore(runLs),
			},
			{
				Name:      "stat",
				Usage:     "print a blob's size and content type",
				ArgsUsage: "scheme://path",
				Action:    withStore(runStat),
			},
			{
				Name:      "exists",
				Usage:     "print whether a blob exists; exits 1 when absent",
				ArgsUsage: "scheme://path",
				Action:    withStore(runExists),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// withStore builds the store facade from the --backend bindings before
// running the command.
func withStore(run func(cCtx *cli.Context, st *store.Store) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)
		st, err := flags.BuildStore(cCtx.Context, cCtx, logger)
		if err != nil {
			return err
		}
		return run(cCtx, st)
	}
}

func locatorArg(cCtx *cli.Context) (string, error) {
	locator := cCtx.Args().First()
	if locator == "" {
		return "", errors.New("expected a scheme://path locator argument")
	}
	return locator, nil
}

func runCat(cCtx *cli.Context, st *store.Store) error {
	locator, err := locatorArg(cCtx)
	if err != nil {
		return err
	}

	data, err := st.Read(cCtx.Context, locator)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runPut(cCtx *cli.Context, st *store.Store) error {
	locator, err := locatorArg(cCtx)
	if err != nil {
		return err
	}

	source := cCtx.Args().Get(1)
	var data []byte
	if source == "" || source == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return err
	}

	return st.WriteTyped(cCtx.Context, locator, data, cCtx.String("content-type"))
}

func runRm(cCtx *cli.Context, st *store.Store) error {
	locator, err := locatorArg(cCtx)
	if err != nil {
		return err
	}
	return st.Remove(cCtx.Context, locator)
}

func runLs(cCtx *cli.Context, st *store.Store) error {
	prefix, err := locatorArg(cCtx)
	if err != nil {
		return err
	}

	it, err := st.List(cCtx.Context, prefix)
	if err != nil {
		return err
	}
	defer it.Close()

	for {
		locator, err := it.Next(cCtx.Context)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println(locator)
	}
}

func runStat(cCtx *cli.Context, st *store.Store) error {
	locator, err := locatorArg(cCtx)
	if err != nil {
		return err
	}

	info, err := st.Stat(cCtx.Context, locator)
	if err != nil {
		return err
	}

	fmt.Printf("locator:\t%s\n", info.Path)
	fmt.Printf("size:\t%d\n", info.Size)
	if info.ContentType != "" {
		fmt.Printf("content-type:\t%s\n", info.ContentType)
	}
	return nil
}

func runExists(cCtx *cli.Context, st *store.Store) error {
	locator, err := locatorArg(cCtx)
	if err != nil {
		return err
	}

	ok, err := st.Exists(cCtx.Context, locator)
	if err != nil {
		return err
	}
	fmt.Println(ok)
	if !ok {
		return cli.Exit("", 1)
	}
	return nil
}
