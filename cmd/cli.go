package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/dbdiag/dbdiag/internal/config"
	"github.com/dbdiag/dbdiag/internal/dialogue"
)

var (
	cliHyb bool
	cliRAR bool
)

var cliCmd = &cobra.Command{
	Use:   "cli",
	Short: "Launch an interactive diagnosis dialogue in this terminal",
	Long:  `Describe a problem, confirm or deny the recommended observations, and converge on a root cause (spec §4.5, GAR by default).`,
	RunE:  runCLI,
}

func init() {
	cliCmd.Flags().BoolVar(&cliHyb, "hyb", false, "use the Hyb hybrid-retrieval variant")
	cliCmd.Flags().BoolVar(&cliRAR, "rar", false, "use the RAR pure-LLM variant")
	rootCmd.AddCommand(cliCmd)
}

func runCLI(cmd *cobra.Command, args []string) error {
	if cliRAR {
		return fmt.Errorf("the RAR variant's interface is specified but not implemented by this engine")
	}
	variant := config.VariantGAR
	if cliHyb {
		variant = config.VariantHyb
	}

	mgr, _, closeFn, err := buildDialogueManager(variant)
	if err != nil {
		return err
	}
	defer closeFn()

	fmt.Println("dbdiag interactive diagnosis. Describe the problem to begin; Ctrl+D to quit.")
	fmt.Println()

	ctx := context.Background()
	sessionID := newCLISessionID()
	started := false
	prompt := promptui.Prompt{Label: "dbdiag"}

	for {
		line, err := prompt.Run()
		if errors.Is(err, promptui.ErrEOF) || errors.Is(err, promptui.ErrInterrupt) {
			fmt.Println()
			return nil
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "input error: %v\n", err)
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/exit" {
			return nil
		}

		var resp *dialogue.Response
		if !started {
			resp, err = mgr.StartConversation(ctx, sessionID, line)
			started = true
		} else {
			resp, err = mgr.ContinueConversation(ctx, sessionID, line)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "internal error: %v\n", err)
			continue
		}
		printCLIResponse(resp)

		if resp.Kind != dialogue.KindDiagnosis {
			printHypothesisBoard(ctx, mgr, sessionID)
		}
	}
}

// printHypothesisBoard renders the same ranked-hypothesis text Status
// produces, on every turn rather than only when a session is queried
// directly, so the operator can watch confidence converge turn by turn.
func printHypothesisBoard(ctx context.Context, mgr *dialogue.Manager, sessionID string) {
	status, err := mgr.Status(ctx, sessionID)
	if err != nil || status.Kind == dialogue.KindError {
		return
	}
	fmt.Println(status.Message)
	fmt.Println()
}

func printCLIResponse(resp *dialogue.Response) {
	fmt.Println()
	switch resp.Kind {
	case dialogue.KindDiagnosis:
		fmt.Println(resp.Diagnosis)
		fmt.Printf("(confidence %.2f, root cause %s)\n", resp.Confidence, resp.RootCauseID)
	case dialogue.KindRecommend:
		fmt.Println(resp.Message)
		for i, choice := range resp.Phenomena {
			fmt.Printf("  %d. %s\n", i+1, choice.Phenomenon.Description)
		}
	case dialogue.KindError:
		fmt.Fprintf(os.Stderr, "error: %s\n", resp.Message)
	default:
		fmt.Println(resp.Message)
	}
	fmt.Println()
}

func newCLISessionID() string {
	return fmt.Sprintf("cli-%d", os.Getpid())
}
