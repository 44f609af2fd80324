package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/projsearch/internal/searcher"
	"github.com/dshills/projsearch/pkg/types"
)

var (
	searchQuery      string
	searchMode       string
	searchPage       int
	searchPageSize   int
	searchRole       string
	searchViewerID   int64
	searchDifficulty string
	searchTags       string
	searchSkills     string
	searchThesis     bool
	searchPractice   bool
	searchCoursework bool
	searchMentorID   int64
	searchJSON       bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search projects",
	Long: `Search projects with free text and filters.

Examples:
  projsearch search -q "graph databases"
  projsearch search -q "compilers" --difficulty hard --thesis
  projsearch search --mentor 3 --role admin --json`,
	Args: cobra.NoArgs,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	f := searchCmd.Flags()
	f.StringVarP(&searchQuery, "query", "q", "", "search text; blank lists newest first")
	f.StringVar(&searchMode, "mode", string(searcher.SearchModeHybrid), "hybrid, semantic or lexical")
	f.IntVar(&searchPage, "page", 0, "0-indexed page")
	f.IntVarP(&searchPageSize, "size", "n", 0, "page size (default from config)")
	f.StringVar(&searchRole, "role", string(types.RoleStudent), "viewer role")
	f.Int64Var(&searchViewerID, "viewer", 0, "viewer user id")
	f.StringVar(&searchDifficulty, "difficulty", "", "easy, medium or hard")
	f.StringVar(&searchTags, "tags", "", "tag substring")
	f.StringVar(&searchSkills, "skills", "", "required skills substring")
	f.BoolVar(&searchThesis, "thesis", false, "thesis-eligible only")
	f.BoolVar(&searchPractice, "practice", false, "practice-eligible only")
	f.BoolVar(&searchCoursework, "coursework", false, "coursework-eligible only")
	f.Int64Var(&searchMentorID, "mentor", 0, "mentor user id")
	f.BoolVar(&searchJSON, "json", false, "print the page as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	role, err := types.ParseRole(searchRole)
	if err != nil {
		return err
	}

	var filters types.Filters
	if searchDifficulty != "" {
		d, err := types.ParseDifficulty(searchDifficulty)
		if err != nil {
			return err
		}
		filters.Difficulty = &d
	}
	if searchThesis {
		filters.ThesisOK = &searchThesis
	}
	if searchPractice {
		filters.PracticeOK = &searchPractice
	}
	if searchCoursework {
		filters.CourseworkOK = &searchCoursework
	}
	if cmd.Flags().Changed("mentor") {
		filters.MentorID = &searchMentorID
	}
	filters.Tags = searchTags
	filters.Skills = searchSkills

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	page, err := a.searcher.Search(cmd.Context(), searcher.SearchRequest{
		Query:    searchQuery,
		Filters:  filters,
		Viewer:   types.Viewer{UserID: searchViewerID, Role: role},
		Page:     searchPage,
		PageSize: searchPageSize,
		Mode:     searcher.SearchMode(searchMode),
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	}

	fmt.Printf("Found %d projects (page %d)\n", page.Total, page.Page)
	if page.Degraded {
		fmt.Println("Semantic ranking unavailable; results are lexical only")
	}
	fmt.Println()
	for i, p := range page.Items {
		fmt.Printf("%d. [%d] %s", page.Page*page.PageSize+i+1, p.ID, p.Title)
		if p.Difficulty != "" {
			fmt.Printf(" (%s)", p.Difficulty)
		}
		fmt.Println()
		if p.MentorName != "" {
			fmt.Printf("   Mentor: %s\n", p.MentorName)
		}
		if p.Tags != "" {
			fmt.Printf("   Tags: %s\n", p.Tags)
		}
	}
	return nil
}
