package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shawnantonucci/Tale/driver"
	"github.com/shawnantonucci/Tale/examples/survival"
	"github.com/shawnantonucci/Tale/pubsub"
	"github.com/shawnantonucci/Tale/session"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the survival demo story.",
	Long: "`run` starts the survival demo story, reading player input from " +
		"stdin, with the monitoring server and trace recording enabled.",
	Run: func(cmd *cobra.Command, args []string) {
		runStory(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Int("monitor-port", 0,
		"port for the monitoring server, 0 picks a free one")
	runCmd.Flags().String("output", "",
		"recording database name, without the .sqlite3 extension")
	runCmd.Flags().Float64("scale", 5,
		"game seconds that pass per real second")
	runCmd.Flags().Duration("tick", time.Second,
		"real-time duration of one tick")
	runCmd.Flags().Bool("if-mode", false,
		"tick once per command instead of on a timer")
	runCmd.Flags().Bool("browser", false,
		"open the monitoring dashboard in a browser")
}

func runStory(cmd *cobra.Command) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("tale: reading .env: %v", err)
	}

	monitorPort, _ := cmd.Flags().GetInt("monitor-port")
	if monitorPort == 0 {
		monitorPort = envInt("TALE_MONITOR_PORT", 0)
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = os.Getenv("TALE_OUTPUT")
	}

	scale, _ := cmd.Flags().GetFloat64("scale")
	tick, _ := cmd.Flags().GetDuration("tick")
	ifMode, _ := cmd.Flags().GetBool("if-mode")
	browser, _ := cmd.Flags().GetBool("browser")

	cfg := driver.DefaultConfig()
	cfg.Scale = scale
	cfg.TickInterval = tick
	if ifMode {
		cfg.TickMethod = driver.TickMethodCommand
	}

	story := survival.New()
	registry := driver.NewCommandRegistry()
	story.RegisterCommands(registry)

	builder := session.MakeBuilder().
		WithDriverConfig(cfg).
		WithParser(survival.NewParser()).
		WithCommandRegistry(registry)
	if monitorPort > 0 {
		builder = builder.WithMonitorPort(monitorPort)
	}
	if browser {
		builder = builder.WithBrowserLaunch()
	}
	if output != "" {
		builder = builder.WithOutputFileName(output)
	}

	sess := builder.Build()
	defer sess.Terminate()

	if err := story.Install(sess); err != nil {
		log.Fatalf("tale: installing story: %v", err)
	}

	player := story.Player
	sess.GetBroker().Subscribe(
		pubsub.ActorTopic(player.Name()),
		&pubsub.ListenerFunc{F: func(topic string, message any) error {
			fmt.Println(message)
			return nil
		}})

	go feedInput(sess, player)

	fmt.Printf("You are %s. The zombie is not your friend. "+
		"Type 'look' to begin.\n", player.Name())

	if err := sess.Run(); err != nil {
		log.Fatalf("tale: driver loop: %v", err)
	}
}

// feedInput forwards stdin lines to the driver until stdin closes.
func feedInput(sess *session.Session, player driver.Actor) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		if err := sess.GetDriver().Submit(player, line); err != nil {
			log.Printf("tale: %v", err)
		}
	}

	sess.Stop()
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("tale: invalid %s=%q: %v", key, raw, err)
		return fallback
	}

	return value
}
