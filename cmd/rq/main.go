package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"reqline/internal/app"
	"reqline/internal/config"
	"reqline/internal/db"
	"reqline/internal/domain"
	"reqline/internal/engine"
	"reqline/internal/migrate"
	"reqline/internal/server"
	"reqline/internal/store"
	"reqline/internal/taxonomy"
)

var rootCmd = &cobra.Command{
	Use:   "rq",
	Short: "Reqline CLI",
	Long: `Reqline manages requirement specifications with a guarded review workflow.
Core concepts:
- Workspace: your .reqline directory holding the database; configs live in the DB.
- Solution: the product under specification; it owns all requirements and events.
- Requirements: typed artifacts (vision, outcome, functional behavior, ...) that
  flow proposed -> review -> active, with rejected and removed as exits.
- Endorsements: sign-offs collected during review, from eligible persons and
  from automated checks (grammar, readability, glossary).
- Persons: requirements that bridge app users into a solution with endorsement
  capabilities; owners can endorse everything.
- Event log: diary of changes, view with 'rq log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("REQLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "acting app user")
	rootCmd.PersistentFlags().String("solution", "", "solution id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("solution", rootCmd.PersistentFlags().Lookup("solution"))
}

func registerCommands() {
	rootCmd.AddCommand(solutionCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(requirementCmd())
	rootCmd.AddCommand(endorseCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(typesCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(apikeyCmd())
}

func solutionCmd() *cobra.Command {
	sol := &cobra.Command{Use: "solution", Short: "Manage solutions"}
	sol.AddCommand(solutionListCmd())
	sol.AddCommand(solutionCreateCmd())
	sol.AddCommand(solutionShowCmd())
	sol.AddCommand(solutionConfigCmd())
	return sol
}

func solutionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List solutions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				items, err := s.ListSolutions(ctx, "")
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func solutionCreateCmd() *cobra.Command {
	var id, name, orgID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create solution",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				seedCfg := config.Default(id)
				if orgID != "" {
					seedCfg.Organization.ID = orgID
					seedCfg.Organization.Name = orgID
				}
				if name != "" {
					seedCfg.Solution.Name = name
				}
				if err := app.CreateSolution(ctx, s, id, seedCfg, viper.GetString("actor-id")); err != nil {
					return err
				}
				sol, err := s.GetSolution(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(sol)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "solution id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&orgID, "org", "", "organization id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func solutionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active solution",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sol, err := e.Store.GetSolution(ctx, e.Config.Solution.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(sol)
			})
		},
	}
}

func solutionConfigCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage solution config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show solution config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	})
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import solution config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			filePath, _ := cmd.Flags().GetString("file")
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			solutionID := cfg.Solution.ID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if solutionID == "" {
					solutionID = e.Config.Solution.ID
				}
				if err := e.Store.UpsertSolutionConfig(ctx, solutionID, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	importCmd.Flags().String("file", "", "path to YAML config")
	_ = importCmd.MarkFlagRequired("file")
	cfg.AddCommand(importCmd)
	return cfg
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show solution status",
		Long:  "The scoreboard for a solution: requirement counts per state and the minimum-required types still missing an active instance.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				solutionID := e.Config.Solution.ID
				counts, err := e.Store.CountRequirementsByState(ctx, solutionID)
				if err != nil {
					return err
				}
				missing, err := e.MissingMinimumRequirements(ctx, solutionID)
				if err != nil {
					return err
				}
				out := map[string]any{
					"solution_id":     solutionID,
					"state_counts":    counts,
					"missing_minimum": missing,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Solution: %s\n", solutionID)
				fmt.Println("Requirements:")
				states := make([]string, 0, len(counts))
				for state := range counts {
					states = append(states, state)
				}
				sort.Strings(states)
				for _, state := range states {
					fmt.Printf("  %s: %d\n", state, counts[state])
				}
				if len(missing) > 0 {
					fmt.Printf("Missing minimum: %s\n", strings.Join(missing, ", "))
				} else {
					fmt.Println("Minimum requirement set is active.")
				}
				return nil
			})
		},
	}
}

func requirementCmd() *cobra.Command {
	req := &cobra.Command{
		Use:   "req",
		Short: "Manage requirements",
		Long:  "Requirements flow proposed -> review -> active. Rejected ones can be revised, removed ones restored, and active ones edited into a new draft version.",
	}
	req.AddCommand(reqProposeCmd())
	req.AddCommand(reqListCmd())
	req.AddCommand(reqActiveCmd())
	req.AddCommand(reqShowCmd())
	req.AddCommand(reqUpdateCmd())
	req.AddCommand(reqTransitionCmd("review", "Submit a proposed requirement for review", func(e engine.Engine, ctx context.Context, actor, id string, _ map[string]any, _ string) (domain.Requirement, error) {
		return e.ReviewRequirement(ctx, actor, id)
	}))
	req.AddCommand(reqTransitionCmd("approve", "Approve a reviewed requirement", func(e engine.Engine, ctx context.Context, actor, id string, _ map[string]any, _ string) (domain.Requirement, error) {
		return e.ApproveRequirement(ctx, actor, id)
	}))
	req.AddCommand(reqRejectCmd())
	req.AddCommand(reqReviseCmd())
	req.AddCommand(reqEditCmd())
	req.AddCommand(reqTransitionCmd("restore", "Restore a removed requirement", func(e engine.Engine, ctx context.Context, actor, id string, _ map[string]any, _ string) (domain.Requirement, error) {
		return e.RestoreRemovedRequirement(ctx, actor, id)
	}))
	req.AddCommand(reqRemoveCmd())
	return req
}

func parseProps(propsJSON, title, description string) (map[string]any, error) {
	props := map[string]any{}
	if propsJSON != "" {
		if err := json.Unmarshal([]byte(propsJSON), &props); err != nil {
			return nil, fmt.Errorf("invalid --props JSON: %w", err)
		}
	}
	if title != "" {
		props["title"] = title
	}
	if description != "" {
		props["description"] = description
	}
	return props, nil
}

func reqProposeCmd() *cobra.Command {
	var reqType, title, description, propsJSON string
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Propose a requirement",
		RunE: func(cmd *cobra.Command, args []string) error {
			props, err := parseProps(propsJSON, title, description)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.ProposeRequirement(ctx, viper.GetString("actor-id"), e.Config.Solution.ID, reqType, props)
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	cmd.Flags().StringVar(&reqType, "type", "", "requirement type")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&propsJSON, "props", "", "additional properties as JSON")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func reqListCmd() *cobra.Command {
	var reqType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requirements",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListRequirements(ctx, viper.GetString("actor-id"), e.Config.Solution.ID, reqType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"REQ ID", "TYPE", "STATE", "VER", "TITLE", "ID"})
				for _, r := range items {
					title, _ := r.Props["title"].(string)
					tw.AppendRow(table.Row{r.ReqID, r.ReqType, r.State, r.Version, title, r.ID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reqType, "type", "", "filter by requirement type")
	return cmd
}

func reqActiveCmd() *cobra.Command {
	var reqType string
	cmd := &cobra.Command{
		Use:   "active",
		Short: "Report whether active requirements exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				active, err := e.HasActiveRequirements(ctx, e.Config.Solution.ID, reqType)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"solution_id": e.Config.Solution.ID,
					"type":        reqType,
					"active":      active,
				})
			})
		},
	}
	cmd.Flags().StringVar(&reqType, "type", "", "filter by requirement type")
	return cmd
}

func reqShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show the latest version of a requirement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.GetRequirement(ctx, viper.GetString("actor-id"), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
}

func reqUpdateCmd() *cobra.Command {
	var title, description, propsJSON string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a proposed requirement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			props, err := parseProps(propsJSON, title, description)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.UpdateProposedRequirement(ctx, viper.GetString("actor-id"), args[0], props)
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&propsJSON, "props", "", "replacement properties as JSON")
	return cmd
}

type transitionFn func(e engine.Engine, ctx context.Context, actor, id string, props map[string]any, comments string) (domain.Requirement, error)

func reqTransitionCmd(verb, short string, fn transitionFn) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := fn(e, ctx, viper.GetString("actor-id"), args[0], nil, "")
				if err != nil {
					return err
				}
				e.Runner.Wait()
				return printJSONOrTable(req)
			})
		},
	}
}

func reqRejectCmd() *cobra.Command {
	var comments string
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a reviewed requirement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.RejectRequirement(ctx, viper.GetString("actor-id"), args[0], comments)
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	cmd.Flags().StringVar(&comments, "comments", "", "rejection comments")
	return cmd
}

func reqReviseCmd() *cobra.Command {
	var title, description, propsJSON string
	cmd := &cobra.Command{
		Use:   "revise <id>",
		Short: "Open a new proposed version from a rejected requirement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			props, err := parseProps(propsJSON, title, description)
			if err != nil {
				return err
			}
			if len(props) == 0 {
				props = nil
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.ReviseRejectedRequirement(ctx, viper.GetString("actor-id"), args[0], props)
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&propsJSON, "props", "", "replacement properties as JSON")
	return cmd
}

func reqEditCmd() *cobra.Command {
	var title, description, propsJSON string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Open a new draft version of an active requirement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			props, err := parseProps(propsJSON, title, description)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.EditActiveRequirement(ctx, viper.GetString("actor-id"), args[0], props)
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&propsJSON, "props", "", "replacement properties as JSON")
	return cmd
}

func reqRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a requirement (dispatches on its current state)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor := viper.GetString("actor-id")
				current, err := e.GetRequirement(ctx, actor, args[0])
				if err != nil {
					return err
				}
				var req domain.Requirement
				switch current.State {
				case domain.StateProposed:
					req, err = e.RemoveProposedRequirement(ctx, actor, args[0])
				case domain.StateRejected:
					req, err = e.RemoveRejectedRequirement(ctx, actor, args[0])
				case domain.StateActive:
					req, err = e.RemoveActiveRequirement(ctx, actor, args[0])
				default:
					err = engine.InvalidWorkflowStateError{RequirementID: args[0], State: current.State, Op: "remove"}
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
}

func endorseCmd() *cobra.Command {
	var comments string
	var reject bool
	cmd := &cobra.Command{
		Use:   "endorse <id>",
		Short: "Resolve your pending endorsement on a reviewed requirement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor := viper.GetString("actor-id")
				var req domain.Requirement
				var err error
				if reject {
					req, err = e.RejectEndorsement(ctx, actor, args[0], comments)
				} else {
					req, err = e.EndorseRequirement(ctx, actor, args[0], comments)
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	cmd.Flags().StringVar(&comments, "comments", "", "endorsement comments")
	cmd.Flags().BoolVar(&reject, "reject", false, "reject instead of approve")
	return cmd
}

func reviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review <id>",
		Short: "Show the review checklist for a requirement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				state, err := e.GetReviewState(ctx, viper.GetString("actor-id"), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(state)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"CATEGORY", "TITLE", "STATUS", "REQUIRED", "YOURS"})
				for _, item := range state.Items {
					tw.AppendRow(table.Row{item.Category, item.Title, item.Status, item.IsRequired, item.CanUserReview})
				}
				tw.Render()
				fmt.Printf("Overall: %s\n", state.Overall)
				return nil
			})
		},
	}
}

func checkCmd() *cobra.Command {
	check := &cobra.Command{Use: "check", Short: "Automated checks"}
	retry := &cobra.Command{
		Use:   "retry <id> <check-type>",
		Short: "Retry an automated check on a reviewed requirement",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.RetryAutomatedCheck(ctx, viper.GetString("actor-id"), args[0], args[1]); err != nil {
					return err
				}
				e.Runner.Wait()
				fmt.Println("check dispatched")
				return nil
			})
		},
	}
	check.AddCommand(retry)
	return check
}

func typesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List requirement types",
		RunE: func(cmd *cobra.Command, args []string) error {
			if viper.GetBool("json") {
				return printJSON(taxonomy.Types())
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"TYPE", "PREFIX", "SINGLETON", "INITIAL STATE"})
			for _, reqType := range taxonomy.Types() {
				spec, _ := taxonomy.Lookup(reqType)
				tw.AppendRow(table.Row{reqType, spec.Prefix, spec.Singleton, spec.Initial})
			}
			tw.Render()
			return nil
		},
	}
}

func logCmd() *cobra.Command {
	logRoot := &cobra.Command{Use: "log", Short: "Event log"}
	var n int
	var evtType, entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Store.LatestEvents(ctx, n, e.Config.Solution.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	logRoot.AddCommand(tail)
	return logRoot
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			s := store.Store{DB: conn}
			_, cfg, err := app.ResolveSolutionAndConfig(cmd.Context(), viper.GetString("solution"), viper.GetString("actor-id"), s)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("REQLINE_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacy,
			}
			if authCfg.JWTSecret == "" && !allowLegacy {
				return fmt.Errorf("REQLINE_JWT_SECRET is required for bearer auth (or pass --allow-legacy-actor-header)")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(e)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Reqline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-actor-header", false, "accept X-Actor-Id without auth (local use only)")
	return cmd
}

func apikeyCmd() *cobra.Command {
	root := &cobra.Command{Use: "apikey", Short: "Manage API keys"}

	var appUserID, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				rawKey := fmt.Sprintf("rq_%d", time.Now().UnixNano())
				key := domain.APIKey{
					ID:        fmt.Sprintf("key_%d", time.Now().UnixNano()),
					AppUserID: appUserID,
					Name:      name,
					KeyHash:   store.HashAPIKey(rawKey),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := s.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				fmt.Printf("API key (save it now, it is not stored): %s\n", rawKey)
				return printJSONOrTable(key)
			})
		},
	}
	create.Flags().StringVar(&appUserID, "app-user", "", "app user the key acts as")
	create.Flags().StringVar(&name, "name", "", "key name")
	_ = create.MarkFlagRequired("app-user")
	root.AddCommand(create)

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				keys, err := s.ListAPIKeys(ctx, "")
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	root.AddCommand(list)

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s store.Store) error {
				return s.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	root.AddCommand(del)
	return root
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	s := store.Store{DB: conn}
	_, cfg, err := app.ResolveSolutionAndConfig(ctx, viper.GetString("solution"), viper.GetString("actor-id"), s)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	defer e.Runner.Wait()
	return fn(ctx, e)
}

func withStore(ctx context.Context, fn func(context.Context, store.Store) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, store.Store{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
