package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

// NewMigrateCommand creates the migrate command
func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  `Apply the embedded schema migrations to the configured database. Memory backends need none.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// AutoMigrate is on by default, so building the service migrates.
			return withService(cmd, func(ctx context.Context, svc simplecms.Service) error {
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}

// NewPageCommand creates the page command group
func NewPageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "page",
		Short: "Manage pages",
	}

	var title, pageURL string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc simplecms.Service) error {
				page, err := svc.CreatePage(ctx, simplecms.CreatePageRequest{Title: title, PageURL: pageURL})
				if err != nil {
					return err
				}
				return printJSON(cmd, page)
			})
		},
	}
	create.Flags().StringVar(&title, "title", "", "page title")
	create.Flags().StringVar(&pageURL, "url", "", "page URL")
	_ = create.MarkFlagRequired("url")

	get := &cobra.Command{
		Use:   "get <page-id>",
		Short: "Show a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("page id", args[0])
			if err != nil {
				return err
			}
			return withService(cmd, func(ctx context.Context, svc simplecms.Service) error {
				page, err := svc.GetPage(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd, page)
			})
		},
	}

	cmd.AddCommand(create, get)
	return cmd
}

// NewRegionCommand creates the region command group
func NewRegionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "region",
		Short: "Manage regions",
	}

	create := &cobra.Command{
		Use:   "create <identifier>",
		Short: "Create a region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc simplecms.Service) error {
				region, err := svc.CreateRegion(ctx, simplecms.CreateRegionRequest{RegionIdentifier: args[0]})
				if err != nil {
					return err
				}
				return printJSON(cmd, region)
			})
		},
	}

	cmd.AddCommand(create)
	return cmd
}

// NewContentCommand creates the content command group
func NewContentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "content",
		Short: "Manage contents",
	}
	cmd.AddCommand(newContentCreateCommand(), newContentGetCommand(), newContentPublishCommand())
	return cmd
}

func newContentCreateCommand() *cobra.Command {
	var kind, name, previewURL, status string
	var regionArgs []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create the first version of a content",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			regionIDs, err := parseIDs("region id", regionArgs)
			if err != nil {
				return err
			}
			req := simplecms.CreateContentRequest{
				Kind:       simplecms.ContentKind(kind),
				Name:       name,
				PreviewURL: previewURL,
				Status:     simplecms.ContentStatus(status),
				RegionIDs:  regionIDs,
			}
			return withService(cmd, func(ctx context.Context, svc simplecms.Service) error {
				content, err := svc.CreateContent(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd, content)
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(simplecms.ContentKindHTML), "content kind")
	cmd.Flags().StringVar(&name, "name", "", "content name")
	cmd.Flags().StringVar(&previewURL, "preview-url", "", "preview URL")
	cmd.Flags().StringVar(&status, "status", "", "initial status (draft, published, preview)")
	cmd.Flags().StringSliceVar(&regionArgs, "region", nil, "child region id of a widget (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newContentGetCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "get <content-id>",
		Short: "Show a content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("content id", args[0])
			if err != nil {
				return err
			}
			var opts []simplecms.FetchOption
			if all {
				opts = append(opts, simplecms.FetchAll())
			}
			return withService(cmd, func(ctx context.Context, svc simplecms.Service) error {
				content, err := svc.GetContent(ctx, id, opts...)
				if err != nil {
					return err
				}
				return printJSON(cmd, content)
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "load regions, options, children and history")
	return cmd
}

func newContentPublishCommand() *cobra.Command {
	var expectedVersion int
	var publishedBy, name string

	cmd := &cobra.Command{
		Use:   "publish <content-id>",
		Short: "Publish the current version of a content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("content id", args[0])
			if err != nil {
				return err
			}
			req := simplecms.PublishContentRequest{
				ContentID:       id,
				ExpectedVersion: expectedVersion,
				PublishedBy:     publishedBy,
			}
			if cmd.Flags().Changed("name") {
				req.Name = &name
			}
			return withService(cmd, func(ctx context.Context, svc simplecms.Service) error {
				content, err := svc.PublishContent(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd, content)
			})
		},
	}

	cmd.Flags().IntVar(&expectedVersion, "expected-version", 0, "version read by the caller (0 skips the check)")
	cmd.Flags().StringVar(&publishedBy, "by", "", "publishing user")
	cmd.Flags().StringVar(&name, "name", "", "new content name")
	return cmd
}

// NewInsertCommand creates the insert command
func NewInsertCommand() *cobra.Command {
	var pageArg, regionArg, contentArg, parentArg string
	var childRegions bool

	cmd := &cobra.Command{
		Use:   "insert",
		Short: "Place a content into a page region",
		Long:  `Place a content into a region of a page, optionally nested under an existing placement.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var req simplecms.InsertContentToPageRequest
			var err error
			if req.PageID, err = parseID("page id", pageArg); err != nil {
				return err
			}
			if req.RegionID, err = parseID("region id", regionArg); err != nil {
				return err
			}
			if req.ContentID, err = parseID("content id", contentArg); err != nil {
				return err
			}
			if parentArg != "" {
				parentID, err := parseID("parent id", parentArg)
				if err != nil {
					return err
				}
				req.ParentPageContentID = &parentID
			}
			req.IncludeChildRegions = childRegions

			return withService(cmd, func(ctx context.Context, svc simplecms.Service) error {
				result, err := svc.InsertContentToPage(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}

	cmd.Flags().StringVar(&pageArg, "page", "", "page id")
	cmd.Flags().StringVar(&regionArg, "region", "", "region id")
	cmd.Flags().StringVar(&contentArg, "content", "", "content id")
	cmd.Flags().StringVar(&parentArg, "parent", "", "parent placement id")
	cmd.Flags().BoolVar(&childRegions, "child-regions", false, "include the child regions of the content")
	_ = cmd.MarkFlagRequired("page")
	_ = cmd.MarkFlagRequired("region")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

// NewPlacementsCommand creates the placements command
func NewPlacementsCommand() *cobra.Command {
	var regionArg, parentArg string
	var topLevel bool

	cmd := &cobra.Command{
		Use:   "placements <page-id>",
		Short: "List the placements of a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pageID, err := parseID("page id", args[0])
			if err != nil {
				return err
			}
			filter := simplecms.PageContentFilter{PageID: pageID, TopLevelOnly: topLevel}
			if regionArg != "" {
				regionID, err := parseID("region id", regionArg)
				if err != nil {
					return err
				}
				filter.RegionID = &regionID
			}
			if parentArg != "" {
				parentID, err := parseID("parent id", parentArg)
				if err != nil {
					return err
				}
				filter.ParentID = &parentID
			}

			return withService(cmd, func(ctx context.Context, svc simplecms.Service) error {
				placements, err := svc.ListPageContents(ctx, filter)
				if err != nil {
					return err
				}
				return printJSON(cmd, placements)
			})
		},
	}

	cmd.Flags().StringVar(&regionArg, "region", "", "only placements in this region")
	cmd.Flags().StringVar(&parentArg, "parent", "", "only children of this placement")
	cmd.Flags().BoolVar(&topLevel, "top-level", false, "only top-level placements")
	return cmd
}

// NewNextOrderCommand creates the next-order command
func NewNextOrderCommand() *cobra.Command {
	var parentArg string

	cmd := &cobra.Command{
		Use:   "next-order <page-id>",
		Short: "Show the order the next placement would receive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pageID, err := parseID("page id", args[0])
			if err != nil {
				return err
			}
			var parentID *uuid.UUID
			if parentArg != "" {
				id, err := parseID("parent id", parentArg)
				if err != nil {
					return err
				}
				parentID = &id
			}

			return withService(cmd, func(ctx context.Context, svc simplecms.Service) error {
				order, err := svc.GetNextOrderNumber(ctx, pageID, parentID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), order)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&parentArg, "parent", "", "parent placement id")
	return cmd
}

func parseID(name, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return id, nil
}

func parseIDs(name string, values []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := parseID(name, v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
