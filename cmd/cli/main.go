package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hackney-volunteers/shift-signup/internal/config"
	"github.com/hackney-volunteers/shift-signup/pkg/clients/gmailclient"
	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
	"github.com/hackney-volunteers/shift-signup/pkg/core/qualifications"
	"github.com/hackney-volunteers/shift-signup/pkg/core/services"
	"github.com/hackney-volunteers/shift-signup/pkg/core/signup"
	"github.com/hackney-volunteers/shift-signup/pkg/postgres"
	"github.com/hackney-volunteers/shift-signup/pkg/utils"
	"github.com/hackney-volunteers/shift-signup/pkg/utils/logging"
)

// App holds the application dependencies
type App struct {
	cfg          *config.Config
	database     *postgres.DB
	registry     *signup.Registry
	bus          *services.Bus
	universe     *qualifications.Universe
	signup       *services.SignupService
	disposition  *services.DispositionService
	seed         *services.SeedService
	housekeeping *services.HousekeepingService
	logger       *zap.Logger
	ctx          context.Context
}

var (
	env string
	app *App
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cli",
		Short: "Shift Signup CLI - Manage volunteer shift signup and disposition",
		Long:  `A CLI tool for managing volunteer shift signup, decline, disposition and capacity tracking.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app != nil {
				if app.database != nil {
					app.database.Close()
				}
				if app.logger != nil {
					app.logger.Sync()
				}
			}
		},
	}

	// Add persistent environment flag
	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (required: test, prod, etc.)")
	rootCmd.MarkPersistentFlagRequired("env")

	// Add all commands
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(signupCmd())
	rootCmd.AddCommand(declineCmd())
	rootCmd.AddCommand(customizeCmd())
	rootCmd.AddCommand(optionsCmd())
	rootCmd.AddCommand(confirmCmd())
	rootCmd.AddCommand(rejectCmd())
	rootCmd.AddCommand(addParticipantCmd())
	rootCmd.AddCommand(finalizeDispatchCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(markFinishedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initApp sets up logger, config, database and services
func initApp() error {
	var err error
	app = &App{
		ctx: context.Background(),
	}

	// Initialize logger
	app.logger, err = logging.InitLogger(env)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.logger.Info("Starting application", zap.String("environment", env))

	// Load configuration
	app.logger.Info("Loading configuration")
	app.cfg, err = config.LoadWithEnv(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.logger.Debug("Configuration loaded successfully")

	// Initialize database
	app.logger.Info("Connecting to database")
	app.database, err = postgres.NewDB(app.ctx, app.cfg.DatabaseURL, app.cfg.LockWait())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := app.database.RunMigrations(app.ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	app.logger.Debug("Database initialized successfully")

	// Build qualification universe from the configured catalogue
	catalogue := make([]model.Qualification, 0, len(app.cfg.Qualifications))
	for _, q := range app.cfg.Qualifications {
		catalogue = append(catalogue, model.Qualification{
			ID:           q.ID,
			Title:        q.Title,
			Abbreviation: q.Abbreviation,
			Includes:     q.Includes,
		})
	}
	app.universe = qualifications.NewUniverse(catalogue)

	// Wire services
	app.registry = signup.NewRegistry()
	app.bus = services.NewBus(app.logger)
	app.signup = services.NewSignupService(app.database, app.registry, app.bus, app.logger)
	app.disposition = services.NewDispositionService(app.database, app.registry, app.bus, app.logger)
	app.seed = services.NewSeedService(app.database, app.logger)
	app.housekeeping = services.NewHousekeepingService(app.database, app.bus, app.logger)

	// Coupled shifts follow their leader through the same dispatch path
	mirror := services.NewCoupledMirror(app.database, app.registry, app.disposition, app.logger)
	mirror.Register(app.bus)

	// Initialize gmail notifications if enabled
	if app.cfg.NotificationsEnabled {
		app.logger.Info("Initializing gmail client")
		oauthCfg, err := config.LoadOAuthClientWithEnv(env)
		if err != nil {
			return fmt.Errorf("failed to load OAuth client config: %w", err)
		}
		oauthConfig, err := utils.GetOAuthConfig(oauthCfg)
		if err != nil {
			return fmt.Errorf("failed to get oauth config: %w", err)
		}
		token, err := utils.GetTokenWithFlow(app.ctx, oauthConfig)
		if err != nil {
			return fmt.Errorf("failed to obtain oauth token: %w", err)
		}
		gmailClient, err := gmailclient.NewClient(app.ctx, oauthCfg, token, app.cfg.GmailUserID)
		if err != nil {
			return fmt.Errorf("failed to create gmail client: %w", err)
		}
		notifier := services.NewNotifier(gmailClient, app.logger)
		notifier.Register(app.bus)
		app.logger.Debug("Gmail client initialized successfully")
	}

	return nil
}

// participantFromFlags builds the acting participant from command flags,
// expanding qualifications over the configured includes relation.
func participantFromFlags(cmd *cobra.Command) (model.Participant, error) {
	userID, _ := cmd.Flags().GetString("user-id")
	firstName, _ := cmd.Flags().GetString("first-name")
	lastName, _ := cmd.Flags().GetString("last-name")
	email, _ := cmd.Flags().GetString("email")
	dob, _ := cmd.Flags().GetString("dob")
	quals, _ := cmd.Flags().GetStringSlice("qualification")

	participant := model.Participant{
		UserID:         userID,
		FirstName:      firstName,
		LastName:       lastName,
		Email:          email,
		Qualifications: app.universe.Spread(quals),
	}
	if dob != "" {
		parsed, err := time.Parse("2006-01-02", dob)
		if err != nil {
			return model.Participant{}, fmt.Errorf("dob must be YYYY-MM-DD: %w", err)
		}
		participant.DateOfBirth = &parsed
	}
	if participant.DisplayName() == "" {
		return model.Participant{}, fmt.Errorf("at least one of --first-name and --last-name is required")
	}
	return participant, nil
}

func addParticipantFlags(cmd *cobra.Command) {
	cmd.Flags().String("user-id", "", "Account ID of the participant (empty for a placeholder)")
	cmd.Flags().String("first-name", "", "First name")
	cmd.Flags().String("last-name", "", "Last name")
	cmd.Flags().String("email", "", "Email address for notifications")
	cmd.Flags().String("dob", "", "Date of birth (YYYY-MM-DD)")
	cmd.Flags().StringSlice("qualification", nil, "Held qualification IDs (repeatable)")
}

func ownerFromFlags(cmd *cobra.Command) (model.Owner, error) {
	userID, _ := cmd.Flags().GetString("user-id")
	placeholder, _ := cmd.Flags().GetString("placeholder")
	if userID == "" && placeholder == "" {
		return model.Owner{}, fmt.Errorf("one of --user-id and --placeholder is required")
	}
	if userID != "" {
		return model.Owner{UserID: userID, DisplayName: placeholder}, nil
	}
	return model.Owner{DisplayName: placeholder}, nil
}

func addOwnerFlags(cmd *cobra.Command) {
	cmd.Flags().String("user-id", "", "Account ID of the participant")
	cmd.Flags().String("placeholder", "", "Display name of a placeholder participant")
}

func individualTimesFromFlags(cmd *cobra.Command, req *services.SignupRequest) error {
	if start, _ := cmd.Flags().GetString("start"); start != "" {
		parsed, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return fmt.Errorf("start must be RFC3339: %w", err)
		}
		req.IndividualStartTime = &parsed
	}
	if end, _ := cmd.Flags().GetString("end"); end != "" {
		parsed, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return fmt.Errorf("end must be RFC3339: %w", err)
		}
		req.IndividualEndTime = &parsed
	}
	return nil
}

func printStats(label string, stats signup.SignupStats) {
	formatOpt := func(v *int) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%d", *v)
	}
	fmt.Printf("\n%s\n", label)
	fmt.Printf("  Requested: %d\n", stats.RequestedCount)
	fmt.Printf("  Confirmed: %d\n", stats.ConfirmedCount)
	fmt.Printf("  Missing:   %d\n", stats.Missing)
	fmt.Printf("  Free:      %s\n", formatOpt(stats.Free))
	fmt.Printf("  Min:       %s\n", formatOpt(stats.MinCount))
	fmt.Printf("  Max:       %s\n\n", formatOpt(stats.MaxCount))
}

func printRejection(err error) bool {
	var rejected *signup.RejectedError
	if !errors.As(err, &rejected) {
		return false
	}
	fmt.Printf("\n✗ Could not %s:\n", rejected.Action)
	for _, reason := range rejected.Reasons {
		fmt.Printf("  - %s\n", reason.Message)
		for _, shiftID := range reason.ConflictingShiftIDs {
			fmt.Printf("      conflicting shift: %s\n", shiftID)
		}
	}
	fmt.Println()
	return true
}

// Command definitions

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <from> <until>",
		Short: "Expand the configured shift series into shifts between two dates (YYYY-MM-DD)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := time.Parse("2006-01-02", args[0])
			if err != nil {
				return fmt.Errorf("from must be YYYY-MM-DD: %w", err)
			}
			until, err := time.Parse("2006-01-02", args[1])
			if err != nil {
				return fmt.Errorf("until must be YYYY-MM-DD: %w", err)
			}

			results, err := app.seed.SeedAll(app.ctx, app.cfg, from, until)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Seeding completed!\n\n")
			for _, result := range results {
				fmt.Printf("Event %s (%s): %d shifts\n", result.Event.Title, result.Event.ID, len(result.Shifts))
				for _, shift := range result.Shifts {
					fmt.Printf("  %s  %s\n", shift.ID, shift.TimeDisplay())
				}
			}
			fmt.Println()
			return nil
		},
	}
}

func signupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signup <shift_id>",
		Short: "Sign the given participant up for a shift",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			participant, err := participantFromFlags(cmd)
			if err != nil {
				return err
			}
			req := services.SignupRequest{
				ShiftID:      args[0],
				Participant:  participant,
				ActingUserID: participant.UserID,
			}
			if err := individualTimesFromFlags(cmd, &req); err != nil {
				return err
			}

			participation, err := app.signup.PerformSignup(app.ctx, req)
			if printRejection(err) {
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("\n✓ Signed up! Participation %s is now %s.\n\n", participation.ID, participation.State)
			return nil
		},
	}
	addParticipantFlags(cmd)
	cmd.Flags().String("start", "", "Individual start time (RFC3339)")
	cmd.Flags().String("end", "", "Individual end time (RFC3339)")
	return cmd
}

func declineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decline <shift_id>",
		Short: "Record the given participant's decline for a shift",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			participant, err := participantFromFlags(cmd)
			if err != nil {
				return err
			}
			participation, err := app.signup.PerformDecline(app.ctx, services.SignupRequest{
				ShiftID:      args[0],
				Participant:  participant,
				ActingUserID: participant.UserID,
			})
			if printRejection(err) {
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("\n✓ Declined. Participation %s is now %s.\n\n", participation.ID, participation.State)
			return nil
		},
	}
	addParticipantFlags(cmd)
	return cmd
}

func customizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "customize <shift_id>",
		Short: "Change the given participant's individual times on a shift",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			participant, err := participantFromFlags(cmd)
			if err != nil {
				return err
			}
			req := services.SignupRequest{
				ShiftID:      args[0],
				Participant:  participant,
				ActingUserID: participant.UserID,
			}
			if err := individualTimesFromFlags(cmd, &req); err != nil {
				return err
			}

			participation, err := app.signup.PerformCustomization(app.ctx, req)
			if printRejection(err) {
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("\n✓ Times updated for participation %s.\n\n", participation.ID)
			return nil
		},
	}
	addParticipantFlags(cmd)
	cmd.Flags().String("start", "", "Individual start time (RFC3339; omit both times to reset)")
	cmd.Flags().String("end", "", "Individual end time (RFC3339; omit both times to reset)")
	return cmd
}

func optionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "options <shift_id>",
		Short: "Show what the given participant may currently do on a shift",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			participant, err := participantFromFlags(cmd)
			if err != nil {
				return err
			}
			options, err := app.signup.ActionOptionsFor(app.ctx, args[0], participant)
			if err != nil {
				return err
			}
			fmt.Printf("\nOptions for %s on shift %s:\n", participant.DisplayName(), args[0])
			fmt.Printf("  Can sign up:   %v\n", options.CanSignUp)
			fmt.Printf("  Can decline:   %v\n", options.CanDecline)
			fmt.Printf("  Can customize: %v\n", options.CanCustomizeSignup)
			for _, reason := range options.SignupErrors {
				fmt.Printf("  signup blocked: %s\n", reason.Message)
			}
			for _, reason := range options.DeclineErrors {
				fmt.Printf("  decline blocked: %s\n", reason.Message)
			}
			fmt.Println()
			return nil
		},
	}
	addParticipantFlags(cmd)
	return cmd
}

func confirmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm <shift_id>",
		Short: "Confirm a participation (responsible action)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ownerFromFlags(cmd)
			if err != nil {
				return err
			}
			actingUserID, _ := cmd.Flags().GetString("acting-user-id")
			participation, err := app.disposition.Confirm(app.ctx, args[0], owner, actingUserID)
			if err != nil {
				return err
			}
			fmt.Printf("\n✓ Participation %s is now %s.\n\n", participation.ID, participation.State)
			return nil
		},
	}
	addOwnerFlags(cmd)
	cmd.Flags().String("acting-user-id", "", "Account ID of the responsible performing the action")
	return cmd
}

func rejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <shift_id>",
		Short: "Reject a participation (responsible action)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ownerFromFlags(cmd)
			if err != nil {
				return err
			}
			actingUserID, _ := cmd.Flags().GetString("acting-user-id")
			participation, err := app.disposition.Reject(app.ctx, args[0], owner, actingUserID)
			if err != nil {
				return err
			}
			fmt.Printf("\n✓ Participation %s is now %s.\n\n", participation.ID, participation.State)
			return nil
		},
	}
	addOwnerFlags(cmd)
	cmd.Flags().String("acting-user-id", "", "Account ID of the responsible performing the action")
	return cmd
}

func addParticipantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "addParticipant <shift_id> <state>",
		Short: "Place a participant on a shift directly (responsible override)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			participant, err := participantFromFlags(cmd)
			if err != nil {
				return err
			}
			state, err := parseState(args[1])
			if err != nil {
				return err
			}
			actingUserID, _ := cmd.Flags().GetString("acting-user-id")
			participation, err := app.disposition.AddParticipant(app.ctx, args[0], participant, state, actingUserID)
			if err != nil {
				return err
			}
			fmt.Printf("\n✓ %s placed on shift %s as %s.\n\n", participant.DisplayName(), args[0], participation.State)
			return nil
		},
	}
	addParticipantFlags(cmd)
	cmd.Flags().String("acting-user-id", "", "Account ID of the responsible performing the action")
	return cmd
}

func finalizeDispatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "finalizeDispatch <shift_id>",
		Short: "End a disposition session, discarding leftover transient entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.disposition.FinalizeDispatch(app.ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("\n✓ Disposition session for shift %s finalized.\n\n", args[0])
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <shift_id|event_id>",
		Short: "Show signup stats for a shift, or aggregated over an event with --event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			forEvent, _ := cmd.Flags().GetBool("event")
			if forEvent {
				stats, err := app.signup.EventStats(app.ctx, args[0])
				if err != nil {
					return err
				}
				printStats(fmt.Sprintf("Stats for event %s:", args[0]), stats)
				return nil
			}
			stats, err := app.signup.ShiftStats(app.ctx, args[0])
			if err != nil {
				return err
			}
			printStats(fmt.Sprintf("Stats for shift %s:", args[0]), stats)
			return nil
		},
	}
	cmd.Flags().Bool("event", false, "Aggregate over all shifts of the event")
	return cmd
}

func markFinishedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "markFinished",
		Short: "Mark participations of ended shifts as finished",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			marked, err := app.housekeeping.MarkFinished(app.ctx)
			if err != nil {
				return err
			}
			fmt.Printf("\n✓ Marked %d participations finished.\n\n", marked)
			return nil
		},
	}
}

func parseState(value string) (model.ParticipationState, error) {
	switch strings.ToLower(value) {
	case "requested":
		return model.StateRequested, nil
	case "confirmed":
		return model.StateConfirmed, nil
	case "declined":
		return model.StateUserDeclined, nil
	case "rejected":
		return model.StateResponsibleRejected, nil
	default:
		return 0, fmt.Errorf("unknown state %q (use requested, confirmed, declined or rejected)", value)
	}
}
