package sqlitebook

// Schema holds the DDL for tabs stored in SQLite. Row positions are kept
// dense (0..n-1) per tab; shifts go through negative values so the
// primary key never collides mid-update.
const Schema = `
CREATE TABLE IF NOT EXISTS tabs (
    name       TEXT PRIMARY KEY,
    header     TEXT NOT NULL DEFAULT '[]',
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tab_rows (
    tab   TEXT NOT NULL,
    pos   INTEGER NOT NULL,
    cells TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (tab, pos)
);
`
