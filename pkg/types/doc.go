/*
Package types defines the data model shared across the synchronization
engine: the entity kinds that travel in sync chunks (saved searches, tags,
notebooks, notes, resources, linked notebooks), the per-entity bookkeeping
fields the engine needs (guid, usn, locally-modified), and the scope
identifier that distinguishes the user-own account from a linked notebook.

Every entity embeds EntityMeta, which carries the fields common to all of
them: a client-local identifier that is stable even before a server guid is
assigned, the guid and usn once the server has assigned them, and the
locally-modified flag the Sender uses to find work.

These types are deliberately plain data: no methods beyond the small
predicates needed by the engine (HasGuid, Expired) and ScopeID.String. Validation and
persistence belong to the local storage interface in pkg/sync/localstore,
not here.
*/
package types
