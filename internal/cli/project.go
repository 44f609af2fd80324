package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dshills/projsearch/internal/storage"
	"github.com/dshills/projsearch/pkg/types"
)

// projectFile is the YAML form accepted by "project apply". A zero id
// creates a project; otherwise the project with that id is updated.
type projectFile struct {
	ID                       int64  `yaml:"id"`
	MentorID                 int64  `yaml:"mentor_id"`
	Title                    string `yaml:"title"`
	Goal                     string `yaml:"goal"`
	KeyTasks                 string `yaml:"key_tasks"`
	Value                    string `yaml:"value"`
	RequiredSkills           string `yaml:"required_skills"`
	Tags                     string `yaml:"tags"`
	CurriculumMatch          string `yaml:"curriculum_match"`
	ResponsibilityBoundaries string `yaml:"responsibility_boundaries"`
	ContactPolicy            string `yaml:"contact_policy"`
	Difficulty               string `yaml:"difficulty"`
	ThesisOK                 bool   `yaml:"thesis_ok"`
	PracticeOK               bool   `yaml:"practice_ok"`
	CourseworkOK             bool   `yaml:"coursework_ok"`
	Status                   string `yaml:"status"`
}

func (f projectFile) toProject() (*storage.Project, error) {
	p := &storage.Project{
		ID:                       f.ID,
		MentorID:                 f.MentorID,
		Title:                    f.Title,
		Goal:                     f.Goal,
		KeyTasks:                 f.KeyTasks,
		ValueText:                f.Value,
		RequiredSkills:           f.RequiredSkills,
		Tags:                     f.Tags,
		CurriculumMatch:          f.CurriculumMatch,
		ResponsibilityBoundaries: f.ResponsibilityBoundaries,
		ContactPolicy:            f.ContactPolicy,
		ThesisOK:                 f.ThesisOK,
		PracticeOK:               f.PracticeOK,
		CourseworkOK:             f.CourseworkOK,
	}
	if f.Difficulty != "" {
		d, err := types.ParseDifficulty(f.Difficulty)
		if err != nil {
			return nil, err
		}
		p.Difficulty = d
	}
	if f.Status != "" {
		s, err := types.ParseStatus(f.Status)
		if err != nil {
			return nil, err
		}
		p.Status = s
	}
	return p, nil
}

var (
	applyFile  string
	showRole   string
	showViewer int64
	userEmail  string
	userName   string
	userRole   string
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Create, update and inspect projects",
}

var projectApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create or update a project from a YAML file",
	Long: `Create or update a project from a YAML file. The embedding is
refreshed after the write commits; with refresh.queue set to bolt the event
is stored in the outbox and picked up by a running server.

Example:
  projsearch project apply -f graph-engine.yaml`,
	Args: cobra.NoArgs,
	RunE: runProjectApply,
}

var projectShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a project with its applications, questions and feedback",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectShow,
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user",
	Args:  cobra.NoArgs,
	RunE:  runUserCreate,
}

func init() {
	rootCmd.AddCommand(projectCmd, userCmd)
	projectCmd.AddCommand(projectApplyCmd, projectShowCmd)
	userCmd.AddCommand(userCreateCmd)

	projectApplyCmd.Flags().StringVarP(&applyFile, "file", "f", "", "project YAML file")
	_ = projectApplyCmd.MarkFlagRequired("file")

	projectShowCmd.Flags().StringVar(&showRole, "role", string(types.RoleAdmin), "viewer role")
	projectShowCmd.Flags().Int64Var(&showViewer, "viewer", 0, "viewer user id")

	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "email address")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "display name")
	userCreateCmd.Flags().StringVar(&userRole, "role", string(types.RoleMentor), "STUDENT, TEACHER, MENTOR or ADMIN")
	_ = userCreateCmd.MarkFlagRequired("email")
}

func runProjectApply(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(applyFile)
	if err != nil {
		return err
	}
	var f projectFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse %s: %w", applyFile, err)
	}
	p, err := f.toProject()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if p.ID == 0 {
		if err := a.projects.Create(cmd.Context(), p); err != nil {
			return err
		}
		fmt.Printf("Created project %d\n", p.ID)
		return nil
	}
	if err := a.projects.Update(cmd.Context(), p); err != nil {
		return err
	}
	fmt.Printf("Updated project %d\n", p.ID)
	return nil
}

func runProjectShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid project id %q", args[0])
	}
	role, err := types.ParseRole(showRole)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	full, err := a.fetcher.Fetch(cmd.Context(), types.Viewer{UserID: showViewer, Role: role}, id)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(full)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	role, err := types.ParseRole(userRole)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	u := &storage.User{Email: userEmail, Name: userName, Role: role}
	if err := a.store.CreateUser(cmd.Context(), u); err != nil {
		return err
	}
	fmt.Printf("Created user %d (%s)\n", u.ID, u.Role)
	return nil
}
