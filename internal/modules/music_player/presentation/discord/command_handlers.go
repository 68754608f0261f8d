package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/deejay/internal/bot"
	"github.com/sglre6355/deejay/internal/modules/music_player/application/usecases"
	"github.com/sglre6355/deejay/internal/modules/music_player/domain"
	"github.com/sglre6355/deejay/internal/modules/music_player/infrastructure"
)

// Embed colors.
const (
	colorSuccess = 0x08c404
	colorError   = 0xE74C3C
)

// commandTimeout bounds a single command, including searches and voice joins.
const commandTimeout = 30 * time.Second

// maxQueueLines is how many queue entries /showqueue lists.
const maxQueueLines = 20

// userError is an input problem reported back verbatim.
type userError string

func (e userError) Error() string { return string(e) }

const (
	errNotInGuild     userError = "This command can only be used in a server."
	errInvalidGuild   userError = "Invalid guild"
	errInvalidChannel userError = "Invalid channel"
	errInvalidUser    userError = "Invalid user"
	errNotElevated    userError = "You need the Manage Channels or Kick Members permission to use this command."
)

// elevatedPermissions grants the moderation commands. Either bit suffices.
const elevatedPermissions = discordgo.PermissionManageChannels | discordgo.PermissionKickMembers

// policy lists the checks a command must pass before it runs.
type policy uint8

const (
	// designatedOnly restricts the command to the designated text channel.
	designatedOnly policy = 1 << iota
	// inVoice requires the requester to be in a voice channel.
	inVoice
	// elevated requires elevatedPermissions.
	elevated
)

func (p policy) has(flag policy) bool { return p&flag != 0 }

// GuildServices returns the playback service of a guild.
type GuildServices interface {
	Get(ctx context.Context, guildID snowflake.ID) (*usecases.GuildPlaybackService, error)
}

// CommandHandlers holds all the command handlers.
type CommandHandlers struct {
	services GuildServices
}

// NewCommandHandlers creates new CommandHandlers.
func NewCommandHandlers(services GuildServices) *CommandHandlers {
	return &CommandHandlers{services: services}
}

// Handlers returns the handler of every command, keyed by command name.
func (h *CommandHandlers) Handlers() map[string]bot.InteractionHandler {
	return map[string]bot.InteractionHandler{
		CommandQueue:     h.wrap(h.queue, designatedOnly|inVoice),
		CommandPlay:      h.wrap(h.play, designatedOnly|inVoice),
		CommandPause:     h.wrap(h.pause, designatedOnly|inVoice),
		CommandSkip:      h.wrap(h.skip, designatedOnly|inVoice|elevated),
		CommandCome:      h.wrap(h.come, designatedOnly),
		CommandLeave:     h.wrap(h.leave, designatedOnly|inVoice),
		CommandShow:      h.wrap(h.show, designatedOnly|inVoice),
		CommandShowNext:  h.wrap(h.showNext, designatedOnly|inVoice),
		CommandShowQueue: h.wrap(h.showQueue, designatedOnly|inVoice),
		CommandRemove:    h.wrap(h.remove, designatedOnly|inVoice),
		CommandClear:     h.wrap(h.clear, designatedOnly|inVoice|elevated),
		CommandDesignate: h.wrap(h.designate, elevated),
		CommandSlowMode:  h.wrap(h.slowMode, designatedOnly|elevated),
		CommandStream:    h.wrap(h.stream, designatedOnly|inVoice),
	}
}

// request is a parsed slash command invocation.
type request struct {
	guildID   snowflake.ID
	channelID snowflake.ID
	requester domain.Requester
	perms     int64
	service   *usecases.GuildPlaybackService
	options   map[string]*discordgo.ApplicationCommandInteractionDataOption
}

type commandFunc func(ctx context.Context, req *request) (*discordgo.MessageEmbed, error)

// wrap runs fn once the invocation passes every check in p. Failed checks
// are answered ephemerally without deferring.
func (h *CommandHandlers) wrap(fn commandFunc, p policy) bot.InteractionHandler {
	return func(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		req, err := h.parse(ctx, i)
		if err != nil {
			return respondError(r, err.Error())
		}

		if err := req.check(p); err != nil {
			slog.Debug("command refused",
				"command", i.ApplicationCommandData().Name,
				"guild", req.guildID,
				"user", req.requester.ID,
				"error", err,
			)
			return respondError(r, err.Error())
		}

		if err := r.Defer(false); err != nil {
			return err
		}

		embed, err := fn(ctx, req)
		if err != nil {
			slog.Debug("command rejected",
				"command", i.ApplicationCommandData().Name,
				"guild", req.guildID,
				"error", err,
			)
			embed = errorEmbed(err.Error())
		}

		return r.Edit(&discordgo.WebhookEdit{Embeds: &[]*discordgo.MessageEmbed{embed}})
	}
}

func (h *CommandHandlers) parse(ctx context.Context, i *discordgo.InteractionCreate) (*request, error) {
	if i.Member == nil || i.Member.User == nil {
		return nil, errNotInGuild
	}

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return nil, errInvalidGuild
	}
	channelID, err := snowflake.Parse(i.ChannelID)
	if err != nil {
		return nil, errInvalidChannel
	}
	userID, err := snowflake.Parse(i.Member.User.ID)
	if err != nil {
		return nil, errInvalidUser
	}

	service, err := h.services.Get(ctx, guildID)
	if err != nil {
		return nil, err
	}

	options := make(map[string]*discordgo.ApplicationCommandInteractionDataOption)
	for _, opt := range i.ApplicationCommandData().Options {
		options[opt.Name] = opt
	}

	return &request{
		guildID:   guildID,
		channelID: channelID,
		requester: domain.Requester{ID: userID, Name: displayName(i.Member)},
		perms:     i.Member.Permissions,
		service:   service,
		options:   options,
	}, nil
}

func (req *request) check(p policy) error {
	if p.has(elevated) && req.perms&elevatedPermissions == 0 {
		return errNotElevated
	}

	if p.has(designatedOnly) {
		options := req.service.Options()
		if options.HasDesignatedChannel() && options.DesignatedTextChannelID != req.channelID {
			return userError(fmt.Sprintf(
				"Music commands can only be used in <#%d>.",
				options.DesignatedTextChannelID,
			))
		}
	}

	if p.has(inVoice) {
		if _, err := req.service.RequesterChannel(req.requester.ID); err != nil {
			return err
		}
	}
	return nil
}

func (req *request) stringOption(name string) string {
	if opt, ok := req.options[name]; ok && opt.Type == discordgo.ApplicationCommandOptionString {
		return opt.StringValue()
	}
	return ""
}

func (req *request) intOption(name string) (int, bool) {
	if opt, ok := req.options[name]; ok && opt.Type == discordgo.ApplicationCommandOptionInteger {
		return int(opt.IntValue()), true
	}
	return 0, false
}

func (req *request) boolOption(name string) bool {
	if opt, ok := req.options[name]; ok && opt.Type == discordgo.ApplicationCommandOptionBoolean {
		return opt.BoolValue()
	}
	return false
}

// channelOption returns the id of a channel option, or 0 when absent.
func (req *request) channelOption(name string) (snowflake.ID, error) {
	opt, ok := req.options[name]
	if !ok {
		return 0, nil
	}
	id, ok := opt.Value.(string)
	if !ok {
		return 0, errInvalidChannel
	}
	channelID, err := snowflake.Parse(id)
	if err != nil {
		return 0, errInvalidChannel
	}
	return channelID, nil
}

func (h *CommandHandlers) queue(ctx context.Context, req *request) (*discordgo.MessageEmbed, error) {
	output, err := req.service.QueueSong(ctx, usecases.QueueSongInput{
		Requester:     req.requester,
		Query:         req.stringOption("query"),
		TextChannelID: req.channelID,
	})
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	if output.JoinedChannelID != 0 {
		fmt.Fprintf(&sb, "Joined <#%d>.\n", output.JoinedChannelID)
	}
	if output.Position == 0 {
		fmt.Fprintf(&sb, "Queued %s (%s).", itemLink(output.Item), output.Item.FormattedDuration())
	} else {
		fmt.Fprintf(&sb, "Queued %s (%s) at position %d.",
			itemLink(output.Item),
			output.Item.FormattedDuration(),
			output.Position,
		)
	}

	return successEmbed(sb.String()), nil
}

func (h *CommandHandlers) play(ctx context.Context, req *request) (*discordgo.MessageEmbed, error) {
	output, err := req.service.Play(ctx, usecases.PlayInput{
		Requester:     req.requester,
		TextChannelID: req.channelID,
	})
	if err != nil {
		return nil, err
	}

	verb := "Playing"
	if output.State == domain.StateStreaming {
		verb = "Streaming"
	}
	return successEmbed(fmt.Sprintf("%s %s.", verb, itemLink(output.Item))), nil
}

func (h *CommandHandlers) pause(ctx context.Context, req *request) (*discordgo.MessageEmbed, error) {
	output, err := req.service.Pause(ctx)
	if err != nil {
		return nil, err
	}
	return successEmbed(fmt.Sprintf("Paused %s.", itemLink(output.Item))), nil
}

func (h *CommandHandlers) skip(ctx context.Context, req *request) (*discordgo.MessageEmbed, error) {
	output, err := req.service.Skip(ctx)
	if err != nil {
		return nil, err
	}
	return successEmbed(describeSkip(output.Skipped, output.Next)), nil
}

func (h *CommandHandlers) come(ctx context.Context, req *request) (*discordgo.MessageEmbed, error) {
	channelID, err := req.channelOption("channel")
	if err != nil {
		return nil, err
	}

	output, err := req.service.JoinVoice(ctx, usecases.JoinInput{
		Requester:     req.requester,
		TextChannelID: req.channelID,
		ChannelID:     channelID,
	})
	if err != nil {
		return nil, err
	}

	if output.AlreadyConnected {
		return successEmbed(fmt.Sprintf("Already in <#%d>.", output.ChannelID)), nil
	}
	return successEmbed(fmt.Sprintf("Connected to <#%d>.", output.ChannelID)), nil
}

func (h *CommandHandlers) leave(ctx context.Context, req *request) (*discordgo.MessageEmbed, error) {
	if err := req.service.LeaveVoice(ctx); err != nil {
		return nil, err
	}
	return successEmbed("Disconnected."), nil
}

func (h *CommandHandlers) show(ctx context.Context, req *request) (*discordgo.MessageEmbed, error) {
	output, err := req.service.NowPlaying(ctx)
	if err != nil {
		return nil, err
	}
	return infrastructure.NowPlayingEmbed(output.Item, output.State == domain.StateStreaming), nil
}

func (h *CommandHandlers) showNext(ctx context.Context, req *request) (*discordgo.MessageEmbed, error) {
	next, err := req.service.NextUp(ctx)
	if err != nil {
		return nil, err
	}
	return successEmbed(fmt.Sprintf("Up next: %s (%s), requested by %s.",
		itemLink(*next),
		next.FormattedDuration(),
		requesterName(next.Requester),
	)), nil
}

func (h *CommandHandlers) showQueue(ctx context.Context, req *request) (*discordgo.MessageEmbed, error) {
	items, err := req.service.GetQueueSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, usecases.ErrQueueEmpty
	}

	var sb strings.Builder
	for index, item := range items {
		if index == maxQueueLines {
			fmt.Fprintf(&sb, "...and %d more\n", len(items)-maxQueueLines)
			break
		}
		writeItemLine(&sb, index, item)
	}

	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Queue (%d)", len(items)),
		Description: sb.String(),
		Color:       colorSuccess,
	}, nil
}

func (h *CommandHandlers) remove(ctx context.Context, req *request) (*discordgo.MessageEmbed, error) {
	position, ok := req.intOption("position")
	if !ok {
		return nil, usecases.ErrInvalidPosition
	}

	output, err := req.service.RemoveSongAt(ctx, position)
	if err != nil {
		return nil, err
	}

	if output.Skipped {
		return successEmbed(fmt.Sprintf("Skipped %s.", itemLink(output.Removed))), nil
	}
	return successEmbed(fmt.Sprintf("Removed %s.", itemLink(output.Removed))), nil
}

func (h *CommandHandlers) clear(ctx context.Context, req *request) (*discordgo.MessageEmbed, error) {
	removed, err := req.service.ClearQueue(ctx)
	if err != nil {
		return nil, err
	}
	return successEmbed(fmt.Sprintf("Cleared %d %s from the queue.", removed, plural(removed, "song"))), nil
}

func (h *CommandHandlers) designate(ctx context.Context, req *request) (*discordgo.MessageEmbed, error) {
	if req.boolOption("off") {
		if err := req.service.SetDesignatedChannel(ctx, 0); err != nil {
			return nil, err
		}
		return successEmbed("Music commands can be used in any channel."), nil
	}

	channelID, err := req.channelOption("channel")
	if err != nil {
		return nil, err
	}
	if channelID == 0 {
		channelID = req.channelID
	}

	if err := req.service.SetDesignatedChannel(ctx, channelID); err != nil {
		return nil, err
	}
	return successEmbed(fmt.Sprintf("Music commands and notices now go to <#%d>.", channelID)), nil
}

func (h *CommandHandlers) slowMode(ctx context.Context, req *request) (*discordgo.MessageEmbed, error) {
	limit, _ := req.intOption("limit")

	output, err := req.service.SetSlowMode(ctx, limit)
	if err != nil {
		return nil, err
	}

	if output.MaxSongsPerPerson == 0 {
		return successEmbed("Slow mode disabled."), nil
	}
	return successEmbed(fmt.Sprintf("Slow mode set to %d. %d %s removed from queue",
		output.MaxSongsPerPerson,
		output.Removed,
		plural(output.Removed, "song"),
	)), nil
}

func (h *CommandHandlers) stream(ctx context.Context, req *request) (*discordgo.MessageEmbed, error) {
	output, err := req.service.SetLive(ctx, usecases.SetLiveInput{
		Requester:     req.requester,
		URI:           req.stringOption("url"),
		TextChannelID: req.channelID,
	})
	if err != nil {
		return nil, err
	}

	if output.Replaced {
		return successEmbed(fmt.Sprintf("Replaced the live stream with %s.", itemLink(output.Item))), nil
	}
	return successEmbed(fmt.Sprintf("Live stream set to %s.", itemLink(output.Item))), nil
}

// Response helpers.

func respondError(r bot.Responder, message string) error {
	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{errorEmbed(message)},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
}

func errorEmbed(message string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Error",
		Description: message,
		Color:       colorError,
	}
}

func successEmbed(description string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Description: description,
		Color:       colorSuccess,
	}
}

func describeSkip(skipped domain.ItemSnapshot, next *domain.ItemSnapshot) string {
	if next == nil {
		return fmt.Sprintf("Skipped %s.", itemLink(skipped))
	}
	return fmt.Sprintf("Skipped %s. Now playing %s.", itemLink(skipped), itemLink(*next))
}

func itemLink(item domain.ItemSnapshot) string {
	if item.URI != "" {
		return fmt.Sprintf("[%s](%s)", item.Title, item.URI)
	}
	return fmt.Sprintf("**%s**", item.Title)
}

// writeItemLine writes a single queue line to the string builder.
// Escapes period to prevent Discord markdown list formatting.
func writeItemLine(sb *strings.Builder, index int, item domain.ItemSnapshot) {
	fmt.Fprintf(sb, "%d\\. %s (%s) - %s\n",
		index,
		itemLink(item),
		item.FormattedDuration(),
		requesterName(item.Requester),
	)
}

func requesterName(r domain.Requester) string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("<@%d>", r.ID)
}

// displayName returns the effective display name for a guild member.
func displayName(member *discordgo.Member) string {
	if member.Nick != "" {
		return member.Nick
	}
	if member.User.GlobalName != "" {
		return member.User.GlobalName
	}
	return member.User.Username
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
