package store

const schema = `
CREATE TABLE IF NOT EXISTS websites (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL,
	scan_time INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_websites_url ON websites(url);

CREATE TABLE IF NOT EXISTS post_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	website_id INTEGER NOT NULL REFERENCES websites(id) ON DELETE CASCADE,
	origin TEXT NOT NULL,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS send_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	website_id INTEGER NOT NULL REFERENCES websites(id) ON DELETE CASCADE,
	extension_id TEXT NOT NULL,
	data TEXT NOT NULL,
	call_frames TEXT NOT NULL,
	stack_hash INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS port_post_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	website_id INTEGER NOT NULL REFERENCES websites(id) ON DELETE CASCADE,
	extension_id TEXT NOT NULL,
	data TEXT NOT NULL,
	call_frames TEXT NOT NULL,
	stack_hash INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS connects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	website_id INTEGER NOT NULL REFERENCES websites(id) ON DELETE CASCADE,
	extension_id TEXT NOT NULL,
	connect_info TEXT NOT NULL,
	call_frames TEXT NOT NULL,
	stack_hash INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS war_requests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	website_id INTEGER NOT NULL REFERENCES websites(id) ON DELETE CASCADE,
	requested_war TEXT NOT NULL,
	requested_extension_id TEXT NOT NULL,
	source TEXT NOT NULL,
	request_object TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_send_messages_ext ON send_messages(extension_id);
CREATE INDEX IF NOT EXISTS idx_port_post_messages_ext ON port_post_messages(extension_id);
CREATE INDEX IF NOT EXISTS idx_connects_ext ON connects(extension_id);
CREATE INDEX IF NOT EXISTS idx_war_requests_ext ON war_requests(requested_extension_id);
`

// Tables lists the tables of the schema, websites first.
var Tables = []string{
	"websites",
	"post_messages",
	"send_messages",
	"port_post_messages",
	"connects",
	"war_requests",
}
