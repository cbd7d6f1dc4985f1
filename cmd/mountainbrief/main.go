package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/felixlee/mountainbrief/internal/briefing"
	"github.com/felixlee/mountainbrief/internal/grib"
	"github.com/felixlee/mountainbrief/internal/httputil"
	"github.com/felixlee/mountainbrief/internal/ingest"
	"github.com/felixlee/mountainbrief/internal/metrics"
	"github.com/felixlee/mountainbrief/internal/models"
	"github.com/felixlee/mountainbrief/internal/sources"
	"github.com/felixlee/mountainbrief/internal/store"
	"github.com/felixlee/mountainbrief/internal/telegram"
)

var defaultZones = []models.Zone{
	{Name: "Glencoe", Latitude: 56.68, Longitude: -5.10},
	{Name: "Ben Nevis", Latitude: 56.7969, Longitude: -5.0036},
	{Name: "Glenshee", Latitude: 56.8526, Longitude: -3.4258},
	{Name: "Cairngorms", Latitude: 57.1, Longitude: -3.7},
}

type cli struct {
	DataDir string `env:"WEATHER_BENCHMARK_DATA_DIR" default:"data" help:"Directory for the SQLite database and GRIB cache."`
	Wgrib2  string `env:"WGRIB2_BIN" default:"wgrib2" help:"wgrib2 binary used to decode GRIB2 files."`

	MetOfficeAPIKey     string `env:"METOFFICE_API_KEY" help:"DataHub site-specific API key."`
	MetOfficeDatasource string `env:"METOFFICE_DATASOURCE" default:"BD1" help:"DataHub site-specific datasource."`

	AtmosAPIKey    string `env:"METOFFICE_ATMOS_API_KEY" help:"DataHub atmospheric-models API key (falls back to METOFFICE_API_KEY)."`
	AtmosOrderID   string `env:"METOFFICE_ATMOS_ORDER_ID" help:"Pin a specific atmospheric-models order."`
	AtmosMaxFiles  int    `env:"METOFFICE_ATMOS_MAX_FILES" default:"8" help:"Max GRIB files to download per run."`
	AtmosMaxFileMB int    `env:"METOFFICE_ATMOS_MAX_FILE_MB" default:"150" help:"Max size of a single GRIB download."`

	OpenWeatherAPIKey string `env:"OPENWEATHER_API_KEY" help:"OpenWeather API key."`
	OpenWeatherMode   string `env:"OPENWEATHER_MODE" default:"auto" enum:"auto,onecall3,onecall,forecast2_5,forecast" help:"OpenWeather endpoint selection."`

	GoogleAPIKey       string `env:"GOOGLE_WEATHER_API_KEY" help:"Google Weather API key."`
	GoogleAccessToken  string `env:"GOOGLE_WEATHER_ACCESS_TOKEN" help:"OAuth2 bearer token for the Google Weather API."`
	GoogleUnitsSystem  string `env:"GOOGLE_WEATHER_UNITS_SYSTEM" default:"METRIC"`
	GoogleLanguageCode string `env:"GOOGLE_WEATHER_LANGUAGE_CODE" default:"en-GB"`
	GoogleQuotaProject string `env:"GOOGLE_WEATHER_QUOTA_PROJECT" help:"Quota project for OAuth user-credential calls."`

	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN" help:"Bot token for the send command."`
	TelegramChatID   string `env:"WEATHER_TELEGRAM_CHAT_ID" help:"Chat to deliver briefings to."`

	PushgatewayURL string `env:"PUSHGATEWAY_URL" help:"Optional Prometheus Pushgateway for run metrics."`

	Run     runCmd     `cmd:"" default:"withargs" help:"Run the daily pipeline and print the briefing."`
	Send    sendCmd    `cmd:"" help:"Run the daily pipeline and relay the briefing to Telegram."`
	Migrate migrateCmd `cmd:"" help:"Apply pending database migrations and exit."`
}

type runCmd struct{}

type sendCmd struct{}

type migrateCmd struct{}

func (c *cli) openStore() (*store.Store, *sql.DB, error) {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(c.DataDir, "mountainbrief.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return st, db, nil
}

// buildSources assembles the configured source set plus the list of
// sources skipped for missing credentials. Open-Meteo and MET Norway
// need no key and are always present.
func (c *cli) buildSources(notes *sources.Notes) (srcs []sources.Source, missing []string, actuals *sources.OpenMeteo) {
	client := httputil.NewClient()

	openMeteo := sources.NewOpenMeteo(client)
	srcs = append(srcs, openMeteo, sources.NewMetNo(client))

	if c.MetOfficeAPIKey != "" {
		srcs = append(srcs, sources.NewMetOffice(client, c.MetOfficeAPIKey, c.MetOfficeDatasource, notes))
	} else {
		missing = append(missing, sources.KeyMetOffice)
	}

	atmosKey := c.AtmosAPIKey
	if atmosKey == "" {
		atmosKey = c.MetOfficeAPIKey
	}
	if atmosKey != "" {
		srcs = append(srcs, sources.NewMetOfficeAtmos(client, sources.AtmosConfig{
			APIKey:    atmosKey,
			OrderID:   c.AtmosOrderID,
			MaxFiles:  c.AtmosMaxFiles,
			MaxFileMB: c.AtmosMaxFileMB,
			CacheDir:  filepath.Join(c.DataDir, "atmos_cache"),
		}, defaultZones, grib.NewWgrib2Decoder(c.Wgrib2), notes))
	} else {
		missing = append(missing, sources.KeyMetOfficeAtm)
	}

	if c.OpenWeatherAPIKey != "" {
		srcs = append(srcs, sources.NewOpenWeather(client, c.OpenWeatherAPIKey, c.OpenWeatherMode, notes))
	} else {
		missing = append(missing, sources.KeyOpenWeather)
	}

	google := sources.NewGoogleWeather(client, sources.GoogleWeatherConfig{
		APIKey:       c.GoogleAPIKey,
		AccessToken:  c.GoogleAccessToken,
		UnitsSystem:  c.GoogleUnitsSystem,
		LanguageCode: c.GoogleLanguageCode,
		QuotaProject: c.GoogleQuotaProject,
	}, notes)
	if google.Configured() {
		srcs = append(srcs, google)
	} else {
		missing = append(missing, sources.KeyGoogle)
	}

	return srcs, missing, openMeteo
}

// runPipeline executes the daily run and always returns a printable
// report. Pipeline failures degrade to a stub report instead of
// leaving the recipient without a message.
func (c *cli) runPipeline(ctx context.Context) string {
	today := time.Now().In(sources.London)
	forecastDate := today.AddDate(0, 0, 1)

	st, db, err := c.openStore()
	if err != nil {
		log.Printf("pipeline: %v", err)
		return briefing.Degraded(forecastDate, err)
	}
	defer db.Close()

	notes := sources.NewNotes()
	srcs, missing, actuals := c.buildSources(notes)

	runner := &ingest.Runner{
		Store:          st,
		Sources:        srcs,
		Actuals:        actuals,
		Notes:          notes,
		Zones:          defaultZones,
		MissingSources: missing,
		MWISClient:     httputil.NewClient(),
	}

	report, err := runner.Run(ctx, today)
	if err != nil {
		log.Printf("pipeline: %v", err)
		report = briefing.Degraded(forecastDate, err)
	}

	if c.PushgatewayURL != "" {
		if err := metrics.Push(c.PushgatewayURL); err != nil {
			log.Printf("pushgateway: %v", err)
		}
	}
	return report
}

func (r *runCmd) Run(ctx context.Context, c *cli) error {
	fmt.Println(c.runPipeline(ctx))
	return nil
}

func (s *sendCmd) Run(ctx context.Context, c *cli) error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN not configured")
	}
	if c.TelegramChatID == "" {
		return fmt.Errorf("WEATHER_TELEGRAM_CHAT_ID not configured")
	}

	report := c.runPipeline(ctx)
	fmt.Println(report)

	tg := telegram.NewClient(c.TelegramBotToken, c.TelegramChatID)
	sent, err := tg.Send(ctx, report)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	log.Printf("sent %d briefing chunks to chat %s", sent, c.TelegramChatID)
	return nil
}

func (m *migrateCmd) Run(c *cli) error {
	st, db, err := c.openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	version, err := st.MigrationVersion()
	if err != nil {
		return fmt.Errorf("migration version: %w", err)
	}
	log.Printf("database migrated (version %d)", version)
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var c cli
	kctx := kong.Parse(&c,
		kong.Name("mountainbrief"),
		kong.Description("Adaptive multi-source Scottish mountain weather briefings."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	kctx.FatalIfErrorf(kctx.Run(&c))
}
