package history

const ddl = `
create table if not exists events (
	id              integer primary key autoincrement,
	kind            text    not null,
	service_id      text    not null,
	previous_status text    not null default '',
	current_status  text    not null default '',
	cause           text    not null default '',
	message         text    not null default '',
	auto_closed     integer not null default 0,
	at              integer not null
);
create index if not exists events_service_at on events (service_id collate nocase, at);
create index if not exists events_at on events (at);
`
