package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	client "github.com/eldtechnologies/messenger/clients/go/messenger"
)

// PageOptions holds pagination flags for the listing commands.
type PageOptions struct {
	*RootOptions
	Page  int
	Limit int
}

func (o *PageOptions) bindFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&o.Page, "page", 1, "page number, starting at 1")
	cmd.Flags().IntVar(&o.Limit, "limit", 20, "page size (max 100)")
}

func parseID(arg, name string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, arg)
	}
	return id, nil
}

// NewSendCommand creates the send command.
func NewSendCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send <sender-id> <receiver-id> <content>",
		Short: "Send a message, creating the conversation on first contact",
		Example: `  messengerctl send 5 9 "hello"
  messengerctl --url http://messenger:8000 send 9 5 "hi back"`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sender, err := parseID(args[0], "sender id")
			if err != nil {
				return err
			}
			receiver, err := parseID(args[1], "receiver id")
			if err != nil {
				return err
			}

			msg, err := client.NewClient(opts.URL).SendMessage(cmd.Context(), sender, receiver, args[2])
			if err != nil {
				return err
			}

			return printResult(cmd.OutOrStdout(), opts.Format, msg, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "message %d sent in conversation %d at %s\n",
					msg.ID, msg.ConversationID, msg.CreatedAt.Format(time.RFC3339Nano))
				return err
			})
		},
	}
}

// MessagesOptions holds flags for the messages command.
type MessagesOptions struct {
	PageOptions
	Before string
}

// NewMessagesCommand creates the messages command.
func NewMessagesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MessagesOptions{PageOptions: PageOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "messages <conversation-id>",
		Short: "List a conversation's messages, newest first",
		Example: `  messengerctl messages 1790329482913222656
  messengerctl messages --before 2024-06-01T10:00:00Z --limit 50 1790329482913222656`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "conversation id")
			if err != nil {
				return err
			}

			var before time.Time
			if opts.Before != "" {
				if before, err = time.Parse(time.RFC3339Nano, opts.Before); err != nil {
					return fmt.Errorf("invalid --before %q: want RFC 3339", opts.Before)
				}
			}

			page, err := client.NewClient(opts.URL).GetMessages(cmd.Context(), id, opts.Page, opts.Limit, before)
			if err != nil {
				return err
			}

			return printResult(cmd.OutOrStdout(), opts.Format, page, func(w io.Writer) error {
				err := table(w, "ID\tSENDER\tRECEIVER\tCREATED\tCONTENT", func(tw io.Writer) {
					for _, m := range page.Data {
						fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\n", m.ID, m.SenderID, m.ReceiverID,
							m.CreatedAt.Format(time.RFC3339Nano), truncate(m.Content, 60))
					}
				})
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(w, "page %d, %d of %d messages\n", page.Page, len(page.Data), page.Total)
				return err
			})
		},
	}
	opts.bindFlags(cmd)
	cmd.Flags().StringVar(&opts.Before, "before", "", "only messages created before this RFC 3339 time")

	return cmd
}

// NewConversationsCommand creates the conversations command.
func NewConversationsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PageOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "conversations <user-id>",
		Short:         "List a user's conversations, most recent first",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0], "user id")
			if err != nil {
				return err
			}

			page, err := client.NewClient(opts.URL).GetUserConversations(cmd.Context(), userID, opts.Page, opts.Limit)
			if err != nil {
				return err
			}

			return printResult(cmd.OutOrStdout(), opts.Format, page, func(w io.Writer) error {
				err := table(w, "ID\tWITH\tLAST MESSAGE AT\tLAST MESSAGE", func(tw io.Writer) {
					for _, c := range page.Data {
						fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", c.ID, c.OtherUserID,
							c.LastMessageAt.Format(time.RFC3339Nano), truncate(c.LastMessageContent, 60))
					}
				})
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(w, "page %d, %d of %d conversations\n", page.Page, len(page.Data), page.Total)
				return err
			})
		},
	}
	opts.bindFlags(cmd)

	return cmd
}

// NewConversationCommand creates the conversation command.
func NewConversationCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "conversation <conversation-id>",
		Short:         "Show a conversation's summary",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "conversation id")
			if err != nil {
				return err
			}

			summary, err := client.NewClient(opts.URL).GetConversation(cmd.Context(), id)
			if err != nil {
				return err
			}

			return printResult(cmd.OutOrStdout(), opts.Format, summary, func(w io.Writer) error {
				fmt.Fprintf(w, "conversation %d between %d and %d\n", summary.ID, summary.User1ID, summary.User2ID)
				fmt.Fprintf(w, "created:       %s\n", summary.CreatedAt.Format(time.RFC3339Nano))
				if summary.LastMessageAt == nil {
					_, err := fmt.Fprintln(w, "last message:  none")
					return err
				}
				content := ""
				if summary.LastMessageContent != nil {
					content = *summary.LastMessageContent
				}
				_, err := fmt.Fprintf(w, "last message:  %s %q\n", summary.LastMessageAt.Format(time.RFC3339Nano), truncate(content, 60))
				return err
			})
		},
	}
}
