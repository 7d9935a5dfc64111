package kinshipcmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/soundprediction/kinship"
	"github.com/soundprediction/kinship/pkg/config"
	"github.com/soundprediction/kinship/pkg/server/handlers"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the Kinship MCP server on stdio",
	Long: `Start a Model Context Protocol server exposing the relationship graph as
tools over stdio, for use by AI assistants.

Tools: add_person, update_person, add_fact, add_rule, get_rule, list_rules,
run_query, list_relation_types, inspect_person_schema, clear_graph.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("db-driver", "sqlite", "Database driver (sqlite, neo4j, badger, memory)")
	mcpCmd.Flags().String("db-uri", "./kinship.db", "Database URI/path")
	mcpCmd.Flags().Bool("lenient-json", false, "Repair almost-JSON documents instead of rejecting them")
	mcpCmd.Flags().String("rules-seed", "", "YAML file of rules loaded at startup")
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("db-driver") {
		cfg.Database.Driver, _ = cmd.Flags().GetString("db-driver")
	}
	if cmd.Flags().Changed("db-uri") {
		cfg.Database.URI, _ = cmd.Flags().GetString("db-uri")
	}
	if cmd.Flags().Changed("lenient-json") {
		cfg.Engine.LenientJSON, _ = cmd.Flags().GetBool("lenient-json")
	}
	if cmd.Flags().Changed("rules-seed") {
		cfg.Engine.RulesSeedPath, _ = cmd.Flags().GetString("rules-seed")
	}

	client, err := initializeKinship(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize Kinship: %w", err)
	}
	defer client.Close(context.Background())

	s := mcpserver.NewMCPServer(
		"kinship",
		handlers.Version,
		mcpserver.WithToolCapabilities(true),
	)
	registerTools(s, client)

	return mcpserver.ServeStdio(s)
}

// registerTools wires every graph operation as an MCP tool. Handlers return
// failures as tool results, never as protocol errors, so the assistant can
// read them and retry.
func registerTools(s *mcpserver.MCPServer, client kinship.Kinship) {
	addPersonTool := mcp.NewTool("add_person",
		mcp.WithDescription("Add a person to the graph. Returns the new person with its generated ID."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Display name. Names need not be unique.")),
		mcp.WithString("data", mcp.Description("Optional JSON object of attributes, e.g. {\"birth_year\": 1970}.")),
	)
	s.AddTool(addPersonTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := request.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		person, err := client.AddPerson(ctx, name, request.GetString("data", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(person)
	})

	updatePersonTool := mcp.NewTool("update_person",
		mcp.WithDescription("Merge attributes into an existing person's document. Top-level keys overwrite."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Person ID.")),
		mcp.WithString("data", mcp.Required(), mcp.Description("JSON object of attributes to merge.")),
	)
	s.AddTool(updatePersonTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		data, err := request.RequireString("data")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		person, err := client.UpdatePerson(ctx, id, data)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(person)
	})

	addFactTool := mcp.NewTool("add_fact",
		mcp.WithDescription("Record a directed relationship between two persons referenced by name. "+
			"Fails if either name matches zero or several persons."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Name of the source person.")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Name of the target person.")),
		mcp.WithString("type", mcp.Required(), mcp.Description("Relation type, e.g. father_of. Check list_relation_types first.")),
		mcp.WithString("data", mcp.Description("Optional JSON object of attributes for the relationship.")),
	)
	s.AddTool(addFactTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		from, err := request.RequireString("from")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		to, err := request.RequireString("to")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		relType, err := request.RequireString("type")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		fact, err := client.AddFact(ctx, from, to, relType, request.GetString("data", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(fact)
	})

	addRuleTool := mcp.NewTool("add_rule",
		mcp.WithDescription("Register a named Datalog rule. Re-registering a name replaces its body. "+
			"Base predicates: person(Id, Name, Data), person_attr(Id, Key, Value), "+
			"fact(From, To, Type, Data), fact_attr(From, To, Type, Key, Value), undirected(A, B, Type)."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Rule name, e.g. grandparent.")),
		mcp.WithString("body", mcp.Required(), mcp.Description("Datalog clauses, e.g. "+
			`grandparent(A, C) :- fact(A, B, "parent_of", _), fact(B, C, "parent_of", _).`)),
		mcp.WithString("description", mcp.Description("Optional human-readable description.")),
	)
	s.AddTool(addRuleTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := request.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		body, err := request.RequireString("body")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := client.AddRule(ctx, name, body, request.GetString("description", "")); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("rule %q saved", name)), nil
	})

	getRuleTool := mcp.NewTool("get_rule",
		mcp.WithDescription("Retrieve a stored rule by name."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Rule name.")),
	)
	s.AddTool(getRuleTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := request.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		rule, err := client.GetRule(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(rule)
	})

	listRulesTool := mcp.NewTool("list_rules",
		mcp.WithDescription("List every stored rule, sorted by name."),
	)
	s.AddTool(listRulesTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rules, err := client.ListRules(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(rules)
	})

	runQueryTool := mcp.NewTool("run_query",
		mcp.WithDescription("Evaluate a Datalog query against the graph plus every stored rule. "+
			"Either a single goal atom like grandparent(X, \"some-id\") or clauses whose last head is the goal."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The Datalog query text.")),
	)
	s.AddTool(runQueryTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		result, err := client.RunQuery(ctx, query)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(result)
	})

	listRelationTypesTool := mcp.NewTool("list_relation_types",
		mcp.WithDescription("List the distinct relation types already present in the graph. "+
			"Check before add_fact to keep the vocabulary consistent."),
	)
	s.AddTool(listRelationTypesTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		relationTypes, err := client.RelationTypes(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(relationTypes)
	})

	inspectSchemaTool := mcp.NewTool("inspect_person_schema",
		mcp.WithDescription("Sample person documents and report attribute keys with one example value each. "+
			"Advisory: any key may appear on any person."),
	)
	s.AddTool(inspectSchemaTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		schema, err := client.PersonSchema(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(schema)
	})

	clearGraphTool := mcp.NewTool("clear_graph",
		mcp.WithDescription("Delete every person, fact, and rule. Irreversible."),
		mcp.WithBoolean("confirm", mcp.Required(), mcp.Description("Must be true to proceed.")),
	)
	s.AddTool(clearGraphTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !request.GetBool("confirm", false) {
			return mcp.NewToolResultError("confirm must be true to clear the graph"), nil
		}
		if err := client.ClearGraph(ctx); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("graph cleared"), nil
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}
