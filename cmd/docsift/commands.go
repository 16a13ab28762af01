package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docsift/docsift/internal/config"
)

// --- collections ---

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "Manage document collections",
}

var collectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/collections")
		if err != nil {
			return err
		}

		var collections []struct {
			Name           string `json:"name"`
			EmbeddingModel string `json:"embedding_model"`
			VectorSize     int    `json:"vector_size"`
			CreatedAt      string `json:"created_at"`
		}
		if err := decodeJSON(resp, &collections); err != nil {
			return err
		}

		if len(collections) == 0 {
			fmt.Println("No collections yet.")
			return nil
		}
		for _, c := range collections {
			fmt.Printf("%s  %s (dim %d)  %s\n",
				colorize(colorBold, c.Name),
				c.EmbeddingModel,
				c.VectorSize,
				c.CreatedAt,
			)
		}
		return nil
	},
}

var collectionsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorSize, _ := cmd.Flags().GetInt("vector-size")
		model, _ := cmd.Flags().GetString("embedding-model")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{
			"name":        args[0],
			"vector_size": vectorSize,
		}
		if model != "" {
			body["embedding_model"] = model
		}
		resp, err := client.post(cmd.Context(), "/collections", body)
		if err != nil {
			return err
		}

		var created struct {
			Name string `json:"name"`
		}
		if err := decodeJSON(resp, &created); err != nil {
			return err
		}

		printSuccess("Created collection %s", created.Name)
		return nil
	},
}

func init() {
	collectionsCreateCmd.Flags().Int("vector-size", 1536, "embedding dimensionality")
	collectionsCreateCmd.Flags().String("embedding-model", "", "embedding model (default: server config)")
	collectionsCmd.AddCommand(collectionsListCmd)
	collectionsCmd.AddCommand(collectionsCreateCmd)
}

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <collection> <file>...",
	Short: "Upload files into a collection",
	Long: `Upload files into a collection.

Examples:
  docsift upload docs report.pdf notes.txt
  docsift upload scans invoice.png`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		collection, paths := args[0], args[1:]

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.uploadFiles(cmd.Context(), collection, paths)
		if err != nil {
			return err
		}

		var result struct {
			Results []struct {
				File   string `json:"file"`
				Status string `json:"status"`
				Chunks int    `json:"chunks"`
				Error  string `json:"error"`
			} `json:"results"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		for _, r := range result.Results {
			switch r.Status {
			case "ingested":
				printSuccess("%s: %d chunks", r.File, r.Chunks)
			case "skipped":
				printWarning("%s: already in collection", r.File)
			default:
				printError("%s: %s", r.File, r.Error)
			}
		}
		return nil
	},
}

// --- files ---

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List or delete indexed files",
}

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed files",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/files")
		if err != nil {
			return err
		}

		var files []struct {
			ID         string `json:"id"`
			Title      string `json:"title"`
			Collection string `json:"collection"`
			Status     string `json:"status"`
			ChunkCount int    `json:"chunk_count"`
		}
		if err := decodeJSON(resp, &files); err != nil {
			return err
		}

		if len(files) == 0 {
			fmt.Println("No files indexed.")
			return nil
		}
		for _, f := range files {
			fmt.Printf("%s  %s  %s  %s (%d chunks)\n",
				colorize(colorCyan, f.ID[:8]),
				f.Collection,
				f.Title,
				f.Status,
				f.ChunkCount,
			)
		}
		return nil
	},
}

var filesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a file from its collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/files/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result["warning"] != "" {
			printWarning("%s", result["warning"])
		}
		printSuccess("Deleted %s", args[0])
		return nil
	},
}

func init() {
	filesCmd.AddCommand(filesListCmd)
	filesCmd.AddCommand(filesDeleteCmd)
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <collection> <question>...",
	Short: "Ask a question against a collection",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		collection := args[0]
		question := strings.Join(args[1:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/ask", map[string]string{
			"collection": collection,
			"question":   question,
		})
		if err != nil {
			return err
		}

		var result struct {
			Answer  string `json:"answer"`
			Sources []struct {
				File string `json:"file"`
				Page int    `json:"page"`
			} `json:"sources"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Answer)
		for _, s := range result.Sources {
			fmt.Printf("  %s\n", colorize(colorCyan, fmt.Sprintf("%s, page %d", s.File, s.Page)))
		}
		return nil
	},
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show or clear recent questions",
}

var historyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show recent questions and answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/history")
		if err != nil {
			return err
		}

		var exchanges []struct {
			Collection string `json:"collection"`
			Question   string `json:"question"`
			Answer     string `json:"answer"`
		}
		if err := decodeJSON(resp, &exchanges); err != nil {
			return err
		}

		if len(exchanges) == 0 {
			fmt.Println("No history.")
			return nil
		}
		for _, e := range exchanges {
			fmt.Printf("%s %s\n", colorize(colorBold, "["+e.Collection+"]"), e.Question)
			fmt.Printf("  %s\n", e.Answer)
		}
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear recent questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/history")
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("History cleared")
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyClearCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
