package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bsm/sectable"
	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"
)

const version = "1.0.0"

type command int

const (
	cmdNone command = iota
	cmdHelp
	cmdQuit
	cmdVersion
	cmdCreateDatabase
	cmdCreateTable
	cmdShowDatabases
	cmdShowTables
	cmdInsertHex
	cmdInsertASCII
	cmdSelect
	cmdSelectASCII
	cmdSelectCSV
	cmdDelete
	cmdCollate
	cmdMerge
	cmdUnlinkList
	cmdDump
	cmdDumpSector
	cmdDumpKeys
	cmdCat
)

// grammar drives the syntax check. Placeholders capture arguments:
// {hex} requires a valid hex string, {word} captures any token, {list}
// absorbs the remaining tokens of the line.
var grammar = []struct {
	cmd     command
	pattern string
}{
	{cmdHelp, "help"},
	{cmdQuit, "quit"},
	{cmdVersion, "version"},
	{cmdCreateDatabase, "create database {word}"},
	{cmdCreateTable, "create table {word} keylen {word} reclen {word}"},
	{cmdShowDatabases, "show databases"},
	{cmdShowTables, "show tables from {word}"},
	{cmdInsertHex, "insert into {word} key {hex} hex {hex}"},
	{cmdInsertASCII, "insert into {word} key {hex} ascii {word}"},
	{cmdSelect, "select from {word} key {hex}"},
	{cmdSelectASCII, "select from {word} key {hex} ascii"},
	{cmdSelectCSV, "select from {word} key {hex} csv hex {word}"},
	{cmdDelete, "delete from {word} max {word} keys {list}"},
	{cmdCollate, "collate {word} max {word}"},
	{cmdMerge, "merge {word} into {word} max {word}"},
	{cmdUnlinkList, "unlink list from {word} key {hex}"},
	{cmdDump, "dump {word} hex {word}"},
	{cmdDumpSector, "dump {word} hex {word} sector {word}"},
	{cmdDumpKeys, "dump keys from {word}"},
	{cmdCat, "cat {hex} from {word}"},
}

// matchCommand finds the grammar entry matching tokens and returns the
// captured arguments.
func matchCommand(tokens []string) (command, []string, bool) {
	for _, g := range grammar {
		if args, ok := matchPattern(strings.Fields(g.pattern), tokens); ok {
			return g.cmd, args, true
		}
	}
	return cmdNone, nil, false
}

func matchPattern(words, tokens []string) ([]string, bool) {
	var args []string
	for i, w := range words {
		if i >= len(tokens) {
			return nil, false
		}
		switch w {
		case "{hex}":
			if !validHex(tokens[i]) {
				return nil, false
			}
			args = append(args, tokens[i])
		case "{word}":
			args = append(args, tokens[i])
		case "{list}":
			return append(args, strings.Join(tokens[i:], "")), true
		default:
			if tokens[i] != w {
				return nil, false
			}
		}
	}
	if len(tokens) != len(words) {
		return nil, false
	}
	return args, true
}

func validHex(s string) bool {
	_, err := sectable.HexToBin(s)
	return err == nil
}

// parseKeys decodes a comma-separated hex key list, requiring every key
// to be exactly keyLen bytes.
func parseKeys(list string, keyLen int) ([][]byte, error) {
	var keys [][]byte
	for _, s := range strings.Split(list, ",") {
		if s == "" {
			continue
		}
		b, err := sectable.HexToBin(s)
		if err != nil || len(b) != keyLen {
			return nil, sectable.ErrInvalidKey
		}
		keys = append(keys, b)
	}
	if len(keys) == 0 {
		return nil, sectable.ErrInvalidKey
	}
	return keys, nil
}

func splitTable(s string) (string, string, bool) {
	i := strings.IndexByte(s, '/')
	if i <= 0 || i >= len(s)-1 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// Console evaluates store commands read from an interactive session or
// passed on the command line.
type Console struct {
	store *sectable.Store
	out   io.Writer
	log   *zap.SugaredLogger
}

func NewConsole(store *sectable.Store, out io.Writer, log *zap.SugaredLogger) *Console {
	return &Console{store: store, out: out, log: log}
}

// splitLine tokenizes a command line, honouring shell quoting so that
// ascii payloads may contain spaces.
func splitLine(line string) ([]string, error) {
	return shellquote.Split(line)
}

// Exec runs a single command line and reports whether the session
// should continue.
func (c *Console) Exec(line string) bool {
	tokens, err := splitLine(line)
	if err != nil {
		c.printf("E066 Syntax error\n")
		return true
	}
	if len(tokens) == 0 {
		return true
	}

	cmd, args, ok := matchCommand(tokens)
	if !ok {
		c.printf("E066 Syntax error\n")
		return true
	}

	switch cmd {
	case cmdQuit:
		return false
	case cmdHelp:
		c.printf("%s", helpText)
	case cmdVersion:
		c.printf("sectable %s\n", version)
	case cmdCreateDatabase:
		c.createDatabase(args[0])
	case cmdCreateTable:
		c.createTable(args[0], args[1], args[2])
	case cmdShowDatabases:
		c.showDatabases()
	case cmdShowTables:
		c.showTables(args[0])
	case cmdInsertHex:
		c.insert(args[0], args[1], args[2], true)
	case cmdInsertASCII:
		c.insert(args[0], args[1], args[2], false)
	case cmdSelect:
		c.sel(args[0], args[1], "hex", "")
	case cmdSelectASCII:
		c.sel(args[0], args[1], "ascii", "")
	case cmdSelectCSV:
		c.sel(args[0], args[1], "csv", args[2])
	case cmdDelete:
		c.delete(args[0], args[1], args[2])
	case cmdCollate:
		c.collate(args[0], args[1])
	case cmdMerge:
		c.merge(args[0], args[1], args[2])
	case cmdUnlinkList:
		c.unlinkList(args[0], args[1])
	case cmdDump:
		c.dump(args[0], args[1], "")
	case cmdDumpSector:
		c.dump(args[0], args[1], args[2])
	case cmdDumpKeys:
		c.dumpKeys(args[0])
	case cmdCat:
		c.cat(args[0], args[1])
	}
	return true
}

func (c *Console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

// fail prints the console error code for err.
func (c *Console) fail(err error) {
	switch {
	case errors.Is(err, sectable.ErrInvalidName):
		c.printf("E064 Invalid characters or name is too long\n")
	case errors.Is(err, sectable.ErrExists):
		c.printf("E068 Already exists\n")
	case errors.Is(err, sectable.ErrInvalidKey):
		c.printf("E071 Invalid key\n")
	case errors.Is(err, sectable.ErrInvalidTable), errors.Is(err, sectable.ErrNotFound):
		c.printf("E072 Cannot access table\n")
	case errors.Is(err, sectable.ErrLengthMismatch),
		errors.Is(err, sectable.ErrSizeMismatch),
		errors.Is(err, sectable.ErrRecordTooLarge),
		errors.Is(err, sectable.ErrIncompatibleTables):
		c.printf("E076 %s\n", err)
	default:
		c.printf("E067 %s\n", err)
	}
	c.log.Warnw("command failed", "err", err)
}

func (c *Console) openTable(dbtable string) (*sectable.Table, bool) {
	db, name, ok := splitTable(dbtable)
	if !ok {
		c.printf("E072 Cannot access table\n")
		return nil, false
	}
	tbl, err := c.store.OpenTable(db, name)
	if err != nil {
		c.fail(err)
		return nil, false
	}
	return tbl, true
}

func (c *Console) createDatabase(db string) {
	if err := c.store.CreateDatabase(db); err != nil {
		c.fail(err)
		return
	}
	c.log.Infow("database created", "db", db)
	c.printf("OK\n")
}

func (c *Console) createTable(dbtable, keyLen, recLen string) {
	db, name, ok := splitTable(dbtable)
	if !ok {
		c.printf("E072 Cannot access table\n")
		return
	}
	kl, err1 := strconv.Atoi(keyLen)
	rl, err2 := strconv.Atoi(recLen)
	if err1 != nil || err2 != nil {
		c.printf("E066 Syntax error\n")
		return
	}
	if _, err := c.store.CreateTable(db, name, kl, rl); err != nil {
		c.fail(err)
		return
	}
	c.log.Infow("table created", "table", dbtable, "keylen", kl, "reclen", rl)
	c.printf("OK\n")
}

func (c *Console) showDatabases() {
	dbs, err := c.store.Databases()
	if err != nil {
		c.fail(err)
		return
	}
	for _, db := range dbs {
		c.printf("%s\n", db)
	}
}

func (c *Console) showTables(db string) {
	tbls, err := c.store.Tables(db)
	if err != nil {
		c.fail(err)
		return
	}
	for _, tbl := range tbls {
		c.printf("%s\n", tbl)
	}
}

func (c *Console) insert(dbtable, keyHex, data string, isHex bool) {
	tbl, ok := c.openTable(dbtable)
	if !ok {
		return
	}
	key, err := sectable.HexToBin(keyHex)
	if err != nil {
		c.fail(err)
		return
	}

	payload := []byte(data)
	if isHex {
		if payload, err = sectable.HexToBin(data); err != nil {
			c.fail(err)
			return
		}
	}

	if err := tbl.Insert(key, payload); err != nil {
		c.fail(err)
		return
	}
	c.log.Infow("record inserted", "table", dbtable, "key", keyHex, "bytes", len(payload))
}

func (c *Console) sel(dbtable, keyHex, format, hexBytes string) {
	tbl, ok := c.openTable(dbtable)
	if !ok {
		return
	}
	key, err := sectable.HexToBin(keyHex)
	if err != nil {
		c.fail(err)
		return
	}
	if len(key) != tbl.KeyLen && len(key) != sectable.MinKeyLen {
		c.printf("E073 Provided key length is invalid\n")
		return
	}

	mode := sectable.MatchExact
	if len(key) == sectable.MinKeyLen && tbl.KeyLen > sectable.MinKeyLen {
		mode = sectable.MatchPrefix
	}

	width := tbl.RecLen
	if width == 0 {
		width = 16
	}

	hexn := 0
	if format == "csv" {
		if hexn, err = strconv.Atoi(hexBytes); err != nil {
			c.printf("E066 Syntax error\n")
			return
		}
	}

	_, err = tbl.Fetch(key, mode, func(k, payload []byte) bool {
		switch format {
		case "ascii":
			c.printf("%s\n", payload)
		case "csv":
			c.printCSV(k, payload, hexn)
		default:
			c.printHex(payload, width)
		}
		return true
	})
	if err != nil {
		c.fail(err)
	}
}

// printHex writes payload as a hex dump of width bytes per row, with a
// printable-ascii gutter.
func (c *Console) printHex(data []byte, width int) {
	for off := 0; off < len(data); off += width {
		end := off + width
		if end > len(data) {
			end = len(data)
		}
		row := data[off:end]
		pad := strings.Repeat("  ", width-len(row))
		c.printf("%s%s %s\n", sectable.BinToHex(row), pad, printable(row))
	}
}

func (c *Console) printCSV(key, payload []byte, hexn int) {
	if hexn > len(payload) {
		hexn = len(payload)
	}
	c.printf("%s,%s,%s\n", sectable.BinToHex(key), sectable.BinToHex(payload[:hexn]), printable(payload[hexn:]))
}

func printable(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c < ' ' || c > '~' {
			c = '.'
		}
		out[i] = c
	}
	return string(out)
}

func (c *Console) delete(dbtable, maxStr, list string) {
	tbl, ok := c.openTable(dbtable)
	if !ok {
		return
	}
	max, err := strconv.Atoi(maxStr)
	if err != nil {
		c.printf("E066 Syntax error\n")
		return
	}
	keys, err := parseKeys(list, tbl.KeyLen)
	if err != nil {
		c.printf("E076 Keys should contain (%d) bytes and have the first byte in common\n", tbl.KeyLen)
		return
	}

	c.printf("Removing %d keys\n", len(keys))
	if err := tbl.Delete(keys, max); err != nil {
		if errors.Is(err, sectable.ErrInvalidKey) {
			c.printf("E076 Keys should contain (%d) bytes and have the first byte in common\n", tbl.KeyLen)
			return
		}
		c.fail(err)
		return
	}
	c.log.Infow("keys deleted", "table", dbtable, "keys", len(keys))
}

func (c *Console) collate(dbtable, maxStr string) {
	tbl, ok := c.openTable(dbtable)
	if !ok {
		return
	}
	max, err := strconv.Atoi(maxStr)
	if err != nil {
		c.printf("E066 Syntax error\n")
		return
	}
	if err := tbl.Collate(max); err != nil {
		c.fail(err)
		return
	}
	c.log.Infow("table collated", "table", dbtable, "max", max)
}

func (c *Console) merge(srcTable, dstTable, maxStr string) {
	src, ok := c.openTable(srcTable)
	if !ok {
		return
	}
	dst, ok := c.openTable(dstTable)
	if !ok {
		return
	}
	max, err := strconv.Atoi(maxStr)
	if err != nil {
		c.printf("E066 Syntax error\n")
		return
	}
	if err := src.MergeInto(dst, max); err != nil {
		c.fail(err)
		return
	}
	c.log.Infow("tables merged", "src", srcTable, "dst", dstTable)
}

func (c *Console) unlinkList(dbtable, keyHex string) {
	tbl, ok := c.openTable(dbtable)
	if !ok {
		return
	}
	if len(keyHex) != sectable.MinKeyLen*2 {
		c.printf("E075 Key length must be 32 bits\n")
		return
	}
	key, err := sectable.HexToBin(keyHex)
	if err != nil {
		c.fail(err)
		return
	}
	if _, err := tbl.Unlink(key); err != nil {
		c.fail(err)
		return
	}
	c.log.Infow("list unlinked", "table", dbtable, "key", keyHex)
}

func (c *Console) dump(dbtable, hexStr, sectorStr string) {
	tbl, ok := c.openTable(dbtable)
	if !ok {
		return
	}
	hexn, err := strconv.Atoi(hexStr)
	if err != nil {
		c.printf("E066 Syntax error\n")
		return
	}

	sector := -1
	if sectorStr != "" {
		n, err := strconv.ParseInt(sectorStr, 16, 32)
		if err != nil || n < 0 || n > 255 {
			n = -1
		}
		sector = int(n)
	}

	if err := tbl.Dump(c.out, hexn, sector); err != nil {
		c.fail(err)
	}
}

func (c *Console) dumpKeys(dbtable string) {
	tbl, ok := c.openTable(dbtable)
	if !ok {
		return
	}
	if err := tbl.DumpKeys(c.out); err != nil {
		c.fail(err)
	}
}

func (c *Console) cat(keyHex, dbtable string) {
	db, name, ok := splitTable(dbtable)
	if !ok {
		c.printf("E072 Cannot access table\n")
		return
	}
	key, err := sectable.HexToBin(keyHex)
	if err != nil || len(key) != sectable.ArchiveKeyLen {
		c.printf("E073 Provided key length is invalid\n")
		return
	}

	arc, err := c.store.OpenArchive(db, name)
	if err != nil {
		c.fail(err)
		return
	}
	blob, err := arc.Fetch(key)
	if err != nil {
		c.fail(err)
		return
	}
	c.out.Write(blob)
	c.printf("\n")
}

const helpText = `sectable stores records under fixed-width binary keys, grouped into 256
sectors by the first key byte. The console accepts the following commands:

create database DBNAME
    Creates an empty database

create table DBNAME/TABLENAME keylen N reclen N
    Creates an empty table in the given database with
    the specified key length (>= 4) and record length (0=variable)

show databases
    Lists databases

show tables from DBNAME
    Lists tables from given database

insert into DBNAME/TABLENAME key KEY hex DATA
    Inserts data (hex) into given db/table for the given hex key

insert into DBNAME/TABLENAME key KEY ascii DATA
    Inserts data (ASCII) into db/table for the given hex key

select from DBNAME/TABLENAME key KEY
    Retrieves all records from db/table for the given hex key (hexdump output)

select from DBNAME/TABLENAME key KEY ascii
    Retrieves all records from db/table for the given hex key (ascii output)

select from DBNAME/TABLENAME key KEY csv hex N
    Retrieves all records from db/table for the given hex key (csv output, with first N bytes in hex)

delete from DBNAME/TABLENAME max LENGTH keys KEY_LIST
    Deletes all records for the given comma separated hex key list from the db/table. Max record length expected

collate DBNAME/TABLENAME max LENGTH
    Collates all lists in a table, removing duplicates and records greater than LENGTH bytes

merge DBNAME/TABLENAME1 into DBNAME/TABLENAME2 max LENGTH
    Merges tables erasing tablename1 when done. Tables must have the same configuration

unlink list from DBNAME/TABLENAME key KEY
    Unlinks the given list (32-bit KEY) from the sector index

dump DBNAME/TABLENAME hex N [sector N]
    Dumps table contents with first N bytes in hex

dump keys from DBNAME/TABLENAME
    Dumps a unique list of existing keys (binary output)

cat KEY from DBNAME/ARCHIVE
    Shows the contents for KEY (128-bit) in the given archive table
`
