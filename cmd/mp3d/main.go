package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/config"
	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/db"
	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/engine"
	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/events"
	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/repo"
	"github.com/lisperz/CS409-Art-of-Web-MP3/internal/server"
	mp3sdk "github.com/lisperz/CS409-Art-of-Web-MP3/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "mp3d",
	Short: "Task/user REST API server",
	Long: `mp3d serves a REST API over two resources, tasks and users, backed by
MongoDB. Tasks reference their assignee; users carry the matching
pendingTasks list, and the server keeps the two sides consistent.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(fillCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	_ = godotenv.Load()
	viper.SetEnvPrefix("MP3")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var demo bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			if demo {
				cfg.Demo = true
			}
			if uri := viper.GetString("mongo-uri"); uri != "" {
				cfg.Mongo.URI = uri
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			var store repo.Store
			var ev events.Writer
			if cfg.Demo {
				store = repo.NewMem()
			} else {
				mdb, disconnect, err := db.Open(cmd.Context(), db.Config{
					URI:      cfg.Mongo.URI,
					Database: cfg.Mongo.Database,
				})
				if err != nil {
					return err
				}
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = disconnect(ctx)
				}()
				if err := repo.EnsureIndexes(cmd.Context(), mdb); err != nil {
					return err
				}
				store = repo.NewMongo(mdb)
				ev = events.Writer{C: mdb.Collection("events")}
			}

			e := engine.New(store, ev)
			handler, err := server.New(server.Config{Engine: e, BasePath: cfg.Server.BasePath})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
				e.Wait()
			}()
			fmt.Printf("Serving API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n",
				cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":4000", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/api", "API base path")
	cmd.Flags().BoolVar(&demo, "demo", false, "serve from an in-memory store")
	return cmd
}

var fillFirstNames = []string{
	"Ava", "Ben", "Cara", "Dan", "Eve", "Finn", "Gia", "Hugo",
	"Iris", "Jack", "Kira", "Liam", "Mona", "Nate", "Omar", "Pia",
}

var fillLastNames = []string{
	"Adams", "Brooks", "Chen", "Diaz", "Evans", "Flores", "Garcia", "Hart",
	"Ito", "Jones", "Kumar", "Lopez", "Murphy", "Nguyen", "Ortiz", "Patel",
}

var fillVerbs = []string{"Write", "Review", "Deploy", "Refactor", "Document", "Test", "Design", "Debug"}

var fillObjects = []string{
	"the landing page", "the billing job", "the search index", "the signup flow",
	"the export pipeline", "the admin panel", "the metrics dashboard", "the cache layer",
}

func fillCmd() *cobra.Command {
	var baseURL string
	var nUsers, nTasks int
	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Seed the API with random users and tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := mp3sdk.New(baseURL)

			users := make([]mp3sdk.User, 0, nUsers)
			for i := 0; i < nUsers; i++ {
				name := fillFirstNames[rand.Intn(len(fillFirstNames))] + " " + fillLastNames[rand.Intn(len(fillLastNames))]
				// uuid suffix keeps emails unique across repeated runs
				email := fmt.Sprintf("%s.%s@example.com",
					strings.ToLower(strings.ReplaceAll(name, " ", ".")),
					uuid.NewString()[:8])
				u, _, err := client.CreateUser(ctx, mp3sdk.User{Name: name, Email: email})
				if err != nil {
					return fmt.Errorf("create user %d: %w", i, err)
				}
				users = append(users, u)
			}

			assigned := 0
			for i := 0; i < nTasks; i++ {
				t := mp3sdk.Task{
					Name:     fillVerbs[rand.Intn(len(fillVerbs))] + " " + fillObjects[rand.Intn(len(fillObjects))],
					Deadline: time.Now().AddDate(0, 0, 1+rand.Intn(60)).UTC().Format(time.RFC3339),
				}
				// roughly half the tasks start out assigned
				if len(users) > 0 && rand.Intn(2) == 0 {
					u := users[rand.Intn(len(users))]
					t.AssignedUser = u.ID
					t.AssignedUserName = u.Name
					assigned++
				}
				if _, _, err := client.CreateTask(ctx, t); err != nil {
					return fmt.Errorf("create task %d: %w", i, err)
				}
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Resource", "Created"})
			tw.AppendRow(table.Row{"users", len(users)})
			tw.AppendRow(table.Row{"tasks", nTasks})
			tw.AppendRow(table.Row{"tasks assigned", assigned})
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:4000/api", "API base URL")
	cmd.Flags().IntVar(&nUsers, "users", 20, "number of users to create")
	cmd.Flags().IntVar(&nTasks, "tasks", 100, "number of tasks to create")
	return cmd
}
