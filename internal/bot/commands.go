package bot

// Command names. Platforms map their own command syntax onto these.
const (
	CommandBalance           = "balance"
	CommandTransfer          = "transfer"
	CommandGrant             = "grant"
	CommandWithdraw          = "withdraw"
	CommandSnowfall          = "snowfall"
	CommandLeaderboard       = "leaderboard"
	CommandExport            = "export"
	CommandChannelAdd        = "channel-add"
	CommandChannelRemove     = "channel-remove"
	CommandChannelList       = "channel-list"
	CommandManagerRoleAdd    = "manager-role-add"
	CommandManagerRoleRemove = "manager-role-remove"
	CommandManagerRoleList   = "manager-role-list"
)
