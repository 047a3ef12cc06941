package cmd

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/coder7br/tjscope/pkg/cache"
	"github.com/coder7br/tjscope/pkg/esaj"
	"github.com/coder7br/tjscope/pkg/format"
)

var oabArgRe = regexp.MustCompile(`^\d{6}[A-Z]{2}$`)

var consultaCmd = &cobra.Command{
	Use:   "consulta <OAB>",
	Short: "Run a one-shot query for an OAB number and print the results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		oab := strings.ToUpper(args[0])
		if !oabArgRe.MatchString(oab) {
			return fmt.Errorf("invalid OAB %q (expected format: 123456SP)", args[0])
		}

		db, err := cache.Open(viper.GetString("cache.path"))
		if err != nil {
			return err
		}
		defer db.Close()

		service := esaj.NewService(db, viper.GetString("artifacts.dir"))

		quiet, _ := cmd.Flags().GetBool("quiet")
		progress := func(msg string) { fmt.Println(msg) }
		if quiet {
			progress = nil
		}

		procs, err := service.ConsultarOAB(context.Background(), oab, progress)
		if errors.Is(err, esaj.ErrNenhumProcesso) {
			fmt.Println("Nenhum processo encontrado para", oab)
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Println(format.Todos(procs))
		fmt.Println(format.Stats(oab, procs))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(consultaCmd)
	consultaCmd.Flags().BoolP("quiet", "q", false, "Suppress progress output")
}
