package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// User is (username, SHA-256 password hash as lowercase hex, is-superuser,
// can-create-db, can-create-user).
type User struct {
	Username      string
	PasswordHash  string
	IsSuperuser   bool
	CanCreateDB   bool
	CanCreateUser bool
}

// HashPassword returns the lowercase hex SHA-256 digest of password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// NewUser creates a user; superusers are implicitly granted CanCreateDB
// and CanCreateUser.
func NewUser(username, password string, superuser bool) *User {
	return &User{
		Username:      username,
		PasswordHash:  HashPassword(password),
		IsSuperuser:   superuser,
		CanCreateDB:   superuser,
		CanCreateUser: superuser,
	}
}

func (u *User) VerifyPassword(password string) bool {
	return u.PasswordHash == HashPassword(password)
}

func (u *User) SetPassword(password string) {
	u.PasswordHash = HashPassword(password)
}

// Role is (name, is-superuser, can-create-db, can-create-role, member
// usernames, parent role names). Authorization resolves transitively
// through parent roles.
type Role struct {
	Name          string
	IsSuperuser   bool
	CanCreateDB   bool
	CanCreateRole bool
	Members       map[string]bool
	ParentRoles   map[string]bool
}

func NewRole(name string) *Role {
	return &Role{Name: name, Members: map[string]bool{}, ParentRoles: map[string]bool{}}
}

// ServerInstance is the root object: databases, per-database metadata,
// and users. Roles are tracked alongside users since both are named,
// server-wide authorization principals.
type ServerInstance struct {
	Databases map[string]*Database
	Metadata  map[string]*DatabaseMetadata
	Users     map[string]*User
	Roles     map[string]*Role
}

func NewServerInstance() *ServerInstance {
	return &ServerInstance{
		Databases: map[string]*Database{},
		Metadata:  map[string]*DatabaseMetadata{},
		Users:     map[string]*User{},
		Roles:     map[string]*Role{},
	}
}

// Initialize seeds a fresh instance with one superuser and one database.
func (s *ServerInstance) Initialize(superuser, password, initialDB string) {
	s.Users[superuser] = NewUser(superuser, password, true)
	key := strings.ToLower(initialDB)
	s.Databases[key] = NewDatabase(initialDB)
	s.Metadata[key] = NewDatabaseMetadata(superuser)
}

func (s *ServerInstance) CreateDatabase(name, owner string) error {
	key := strings.ToLower(name)
	if _, ok := s.Databases[key]; ok {
		return NewAlreadyExists("database", name)
	}
	s.Databases[key] = NewDatabase(name)
	s.Metadata[key] = NewDatabaseMetadata(owner)
	return nil
}

func (s *ServerInstance) DropDatabase(name string) error {
	key := strings.ToLower(name)
	if _, ok := s.Databases[key]; !ok {
		return NewNotFound("database", name)
	}
	delete(s.Databases, key)
	delete(s.Metadata, key)
	return nil
}

func (s *ServerInstance) CreateUser(username, password string, superuser bool) error {
	if _, ok := s.Users[username]; ok {
		return NewAlreadyExists("user", username)
	}
	s.Users[username] = NewUser(username, password, superuser)
	return nil
}

func (s *ServerInstance) DropUser(username string) error {
	if _, ok := s.Users[username]; !ok {
		return NewNotFound("user", username)
	}
	delete(s.Users, username)
	return nil
}

func (s *ServerInstance) CreateRole(name string) error {
	if _, ok := s.Roles[name]; ok {
		return NewAlreadyExists("role", name)
	}
	s.Roles[name] = NewRole(name)
	return nil
}

func (s *ServerInstance) DropRole(name string) error {
	if _, ok := s.Roles[name]; !ok {
		return NewNotFound("role", name)
	}
	delete(s.Roles, name)
	return nil
}

// GrantRoleTo adds parent as a parent of member, refusing to create a
// membership cycle.
func (s *ServerInstance) GrantRoleTo(parent, member string) error {
	if _, ok := s.Roles[parent]; !ok {
		return NewNotFound("role", parent)
	}
	if _, ok := s.Roles[member]; !ok {
		return NewNotFound("role", member)
	}
	if parent == member || s.roleIsAncestor(parent, member) {
		return NewConstraintViolation("role", parent, "granting would create a role membership cycle")
	}
	s.Roles[member].ParentRoles[parent] = true
	s.Roles[parent].Members[member] = true
	return nil
}

// roleIsAncestor reports whether ancestor is reachable by walking up
// start's parent chain.
func (s *ServerInstance) roleIsAncestor(start, ancestor string) bool {
	visited := map[string]bool{}
	var walk func(string) bool
	walk = func(name string) bool {
		if visited[name] {
			return false
		}
		visited[name] = true
		r, ok := s.Roles[name]
		if !ok {
			return false
		}
		for p := range r.ParentRoles {
			if p == ancestor || walk(p) {
				return true
			}
		}
		return false
	}
	return walk(start)
}

// ResolveRolePrivilege reports whether role (or any ancestor role it is a
// member of) is a superuser / can create databases / can create roles.
func (s *ServerInstance) ResolveRolePrivilege(roleName string, pick func(*Role) bool) bool {
	visited := map[string]bool{}
	var walk func(string) bool
	walk = func(name string) bool {
		if visited[name] {
			return false
		}
		visited[name] = true
		r, ok := s.Roles[name]
		if !ok {
			return false
		}
		if pick(r) {
			return true
		}
		for p := range r.ParentRoles {
			if walk(p) {
				return true
			}
		}
		return false
	}
	return walk(roleName)
}

// GrantRoleToUser adds username directly to role's member set, the
// "GRANT role TO user" form the grammar actually exposes (as opposed to
// GrantRoleTo's role-to-role hierarchy, which the grammar never emits).
func (s *ServerInstance) GrantRoleToUser(roleName, username string) error {
	r, ok := s.Roles[roleName]
	if !ok {
		return NewNotFound("role", roleName)
	}
	if _, ok := s.Users[username]; !ok {
		return NewNotFound("user", username)
	}
	r.Members[username] = true
	return nil
}

func (s *ServerInstance) RevokeRoleFromUser(roleName, username string) error {
	r, ok := s.Roles[roleName]
	if !ok {
		return NewNotFound("role", roleName)
	}
	delete(r.Members, username)
	return nil
}

// RolesOf returns every role username is a direct member of.
func (s *ServerInstance) RolesOf(username string) []*Role {
	var out []*Role
	for _, r := range s.Roles {
		if r.Members[username] {
			out = append(out, r)
		}
	}
	return out
}

// UserHasRolePrivilege reports whether any role username directly belongs
// to (or transitively inherits from) satisfies pick, the mechanism by
// which "Authorization resolves transitively through parent roles"
// applies to a plain user rather than another role.
func (s *ServerInstance) UserHasRolePrivilege(username string, pick func(*Role) bool) bool {
	for _, r := range s.RolesOf(username) {
		if s.ResolveRolePrivilege(r.Name, pick) {
			return true
		}
	}
	return false
}

// Authenticate verifies a username/password pair, returning
// AuthenticationFailed if the user does not exist or the password does
// not match.
func (s *ServerInstance) Authenticate(username, password string) (*User, error) {
	u, ok := s.Users[username]
	if !ok || !u.VerifyPassword(password) {
		return nil, &Error{ErrorKind: KindAuthenticationFailed, Entity: "user", Name: username, Message: "bad username or password"}
	}
	return u, nil
}

// IsSuperuser reports whether u is a superuser directly or via role
// membership.
func (s *ServerInstance) IsSuperuser(u *User) bool {
	return u.IsSuperuser || s.UserHasRolePrivilege(u.Username, func(r *Role) bool { return r.IsSuperuser })
}

// CanCreateDB reports whether u may CREATE DATABASE, directly or via role.
func (s *ServerInstance) CanCreateDB(u *User) bool {
	return u.CanCreateDB || s.IsSuperuser(u) || s.UserHasRolePrivilege(u.Username, func(r *Role) bool { return r.CanCreateDB })
}

// CanCreateRole reports whether u may CREATE ROLE; only superusers and
// members of a role with CanCreateRole, since User itself carries no such
// flag.
func (s *ServerInstance) CanCreateRole(u *User) bool {
	return s.IsSuperuser(u) || s.UserHasRolePrivilege(u.Username, func(r *Role) bool { return r.CanCreateRole })
}
