package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"excel2jira/models"
)

// Keys shared by flags, environment variables and the config file
const (
	KeyJiraURL          = "jira_url"
	KeyJiraEmail        = "jira_email"
	KeyJiraAPIToken     = "jira_api_token"
	KeyConfigFile       = "config_file"
	KeyData             = "data"
	KeySheet            = "sheet"
	KeyCredentials      = "credentials"
	KeyProject          = "project"
	KeyQuarter          = "quarter"
	KeyYear             = "year"
	KeyUpdate           = "update"
	KeyFillEmpty        = "fill_empty"
	KeyMatchThreshold   = "match_threshold"
	KeyVerbose          = "verbose"
	KeyQBVProject       = "qbv_project"
	KeyQBVIssueTypeID   = "qbv_issue_type_id"
	KeyOngoingParent    = "ongoing_parent"
	KeyDestinationTeam  = "destination_team"
	KeyRequestedByGroup = "requested_by_group"
	KeyQBVGroup         = "qbv_group"
	KeyInQuarterPlan    = "in_quarter_plan"
	KeyLabels           = "labels"
)

// Custom field ids of the planning fields
const (
	KeyFieldDoD              = "custom_fields.dod"
	KeyFieldDoDNew           = "custom_fields.dod_new"
	KeyFieldRequestedByGroup = "custom_fields.requested_by_group"
	KeyFieldDestinationTeam  = "custom_fields.destination_team"
	KeyFieldYear             = "custom_fields.year"
	KeyFieldQuarter          = "custom_fields.quarter"
	KeyFieldInQuarterPlan    = "custom_fields.in_quarter_plan"
	KeyFieldQBVGroup         = "custom_fields.qbv_group"
)

// Config holds everything a run needs
type Config struct {
	// Jira API
	JiraURL      string
	JiraEmail    string
	JiraAPIToken string

	// Input
	DataPath        string
	Sheet           string
	CredentialsFile string

	// Targets
	ProjectKey     string
	QBVProject     string
	QBVIssueTypeID string
	OngoingParent  string

	// Planning period
	Quarter        models.Quarter
	QuarterDefault bool
	Year           int

	// Behaviour
	UpdateMode     bool
	FillEmpty      bool
	MatchThreshold float64
	Verbose        bool

	// Fixed field values
	DestinationTeam  string
	RequestedByGroup string
	QBVGroup         string
	InQuarterPlan    string
	Labels           []string

	Fields CustomFields
}

// CustomFields maps planning fields to Jira custom field ids
type CustomFields struct {
	DoD              string
	DoDNew           string
	RequestedByGroup string
	DestinationTeam  string
	Year             string
	Quarter          string
	InQuarterPlan    string
	QBVGroup         string
}

// MissingEnvError lists required environment variables that are not set
type MissingEnvError struct {
	Vars []string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("missing required environment variables: %s", strings.Join(e.Vars, ", "))
}

// New returns a viper instance with defaults and environment binding set up
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyProject, "ITDVPS")
	v.SetDefault(KeyQBVProject, "CQ")
	v.SetDefault(KeyOngoingParent, "ITDVPS-976")
	v.SetDefault(KeyMatchThreshold, 0.6)
	v.SetDefault(KeyDestinationTeam, "IT_DevOps Team")
	v.SetDefault(KeyRequestedByGroup, "Dev")
	v.SetDefault(KeyQBVGroup, "CSI")
	v.SetDefault(KeyInQuarterPlan, "Yes")
	v.SetDefault(KeyLabels, []string{"excel2jira"})

	v.SetDefault(KeyFieldDoD, "customfield_10269")
	v.SetDefault(KeyFieldRequestedByGroup, "customfield_10265")
	v.SetDefault(KeyFieldDoDNew, "customfield_10115")
	v.SetDefault(KeyFieldDestinationTeam, "customfield_10114")
	v.SetDefault(KeyFieldYear, "customfield_10268")
	v.SetDefault(KeyFieldQuarter, "customfield_10257")
	v.SetDefault(KeyFieldInQuarterPlan, "customfield_10239")
	v.SetDefault(KeyFieldQBVGroup, "customfield_10256")

	// Jira credentials keep their conventional names, everything else is EXCEL2JIRA_*
	_ = v.BindEnv(KeyJiraURL, "JIRA_URL")
	_ = v.BindEnv(KeyJiraEmail, "JIRA_EMAIL")
	_ = v.BindEnv(KeyJiraAPIToken, "JIRA_API_TOKEN")

	v.SetEnvPrefix("EXCEL2JIRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v
}

// LoadConfig reads .env, the optional config file and the environment into a Config.
// now fixes the default quarter and year.
func LoadConfig(v *viper.Viper, now time.Time) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		JiraURL:          strings.TrimRight(v.GetString(KeyJiraURL), "/"),
		JiraEmail:        v.GetString(KeyJiraEmail),
		JiraAPIToken:     v.GetString(KeyJiraAPIToken),
		DataPath:         strings.TrimSpace(v.GetString(KeyData)),
		Sheet:            v.GetString(KeySheet),
		CredentialsFile:  v.GetString(KeyCredentials),
		ProjectKey:       strings.ToUpper(strings.TrimSpace(v.GetString(KeyProject))),
		QBVProject:       v.GetString(KeyQBVProject),
		QBVIssueTypeID:   v.GetString(KeyQBVIssueTypeID),
		OngoingParent:    v.GetString(KeyOngoingParent),
		UpdateMode:       v.GetBool(KeyUpdate),
		FillEmpty:        v.GetBool(KeyFillEmpty),
		MatchThreshold:   v.GetFloat64(KeyMatchThreshold),
		Verbose:          v.GetBool(KeyVerbose),
		DestinationTeam:  v.GetString(KeyDestinationTeam),
		RequestedByGroup: v.GetString(KeyRequestedByGroup),
		QBVGroup:         v.GetString(KeyQBVGroup),
		InQuarterPlan:    v.GetString(KeyInQuarterPlan),
		Labels:           v.GetStringSlice(KeyLabels),
		Fields: CustomFields{
			DoD:              v.GetString(KeyFieldDoD),
			DoDNew:           v.GetString(KeyFieldDoDNew),
			RequestedByGroup: v.GetString(KeyFieldRequestedByGroup),
			DestinationTeam:  v.GetString(KeyFieldDestinationTeam),
			Year:             v.GetString(KeyFieldYear),
			Quarter:          v.GetString(KeyFieldQuarter),
			InQuarterPlan:    v.GetString(KeyFieldInQuarterPlan),
			QBVGroup:         v.GetString(KeyFieldQBVGroup),
		},
	}

	if err := cfg.resolvePeriod(v.GetString(KeyQuarter), v.GetInt(KeyYear), now); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks credentials and option ranges
func (c *Config) Validate() error {
	var missing []string
	if c.JiraURL == "" {
		missing = append(missing, "JIRA_URL")
	}
	if c.JiraEmail == "" {
		missing = append(missing, "JIRA_EMAIL")
	}
	if c.JiraAPIToken == "" {
		missing = append(missing, "JIRA_API_TOKEN")
	}
	if len(missing) > 0 {
		return &MissingEnvError{Vars: missing}
	}

	if c.ProjectKey == "" {
		return fmt.Errorf("project key must not be empty")
	}

	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("match threshold %v out of range (0, 1]", c.MatchThreshold)
	}

	return nil
}

// resolvePeriod picks the quarter and year, defaulting to the next calendar quarter
func (c *Config) resolvePeriod(quarter string, year int, now time.Time) error {
	rollover := false
	if strings.TrimSpace(quarter) == "" {
		c.Quarter, rollover = models.NextQuarter(int(now.Month()))
		c.QuarterDefault = true
	} else {
		q, err := models.ParseQuarter(quarter)
		if err != nil {
			return err
		}
		c.Quarter = q
	}

	switch {
	case year > 0:
		c.Year = year
	case rollover:
		c.Year = now.Year() + 1
	default:
		c.Year = now.Year()
	}

	return nil
}

func readConfigFile(v *viper.Viper) error {
	if path := v.GetString(KeyConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName("excel2jira")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	return nil
}
