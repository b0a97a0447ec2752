package authz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	"github.com/casbin/casbin/v3/util"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

const (
	apiV1Prefix     = "/api/v1"
	casbinTableName = "casbin_rule"
	rolePrefix      = "role:"

	// roleAnchor 是一条人为的 g 规则锚点，让"空角色"也能在策略表中存在。
	roleAnchor = "role:__anchor__"
)

// rbacModel 的 matcher 同时接受直连主体与角色继承，
// 对象用 keyMatch2 以覆盖 /admin/escrows/:id 这类带参数的路径。
const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = (g(r.sub, p.sub) || r.sub == p.sub) && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

// Policy 一条授权规则：主体（用户或角色）对资源路径的动作许可。
type Policy struct {
	Subject string `json:"subject"`
	Object  string `json:"object"`
	Action  string `json:"action"`
}

// Service 管理后台的 RBAC 判定与策略管理，策略持久化在业务库的 casbin_rule 表。
// 运营、财务、仲裁等角色对订单、托管、支付流水的访问都从这里判定。
type Service struct {
	enforcer *casbin.SyncedEnforcer
}

// NewService 初始化授权服务并加载已持久化的策略。
func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("authz db is nil")
	}
	adapter, err := gormadapter.NewAdapterByDBUseTableName(db, "", casbinTableName)
	if err != nil {
		return nil, fmt.Errorf("create authz adapter: %w", err)
	}
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("parse rbac model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("build enforcer: %w", err)
	}
	enforcer.AddFunction("keyMatch2", util.KeyMatch2Func)
	// 自动落库，策略变更无需显式 SavePolicy。
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	return &Service{enforcer: enforcer}, nil
}

func (s *Service) ready() error {
	if s == nil || s.enforcer == nil {
		return fmt.Errorf("authz service unavailable")
	}
	return nil
}

// EnforceUser 判定用户对资源路径的动作是否放行。
func (s *Service) EnforceUser(userID uint, object, action string) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	return s.enforcer.Enforce(SubjectForUser(userID), NormalizeObject(object), NormalizeAction(action))
}

// EnsureRole 规范化角色名并保证角色在策略表中存在，返回规范化后的名称。
func (s *Service) EnsureRole(role string) (string, error) {
	name, err := NormalizeRole(role)
	if err != nil {
		return "", err
	}
	if name == roleAnchor {
		return "", fmt.Errorf("reserved role is not allowed")
	}
	if err := s.ready(); err != nil {
		return "", err
	}
	exists, err := s.enforcer.HasNamedGroupingPolicy("g", name, roleAnchor)
	if err != nil {
		return "", fmt.Errorf("check role: %w", err)
	}
	if !exists {
		if _, err := s.enforcer.AddNamedGroupingPolicy("g", name, roleAnchor); err != nil {
			return "", fmt.Errorf("create role: %w", err)
		}
	}
	return name, nil
}

// ListRoles 返回全部已知角色，按名称排序。
func (s *Service) ListRoles() ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rules, err := s.enforcer.GetFilteredNamedGroupingPolicy("g", 0)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	seen := make(map[string]struct{})
	for _, rule := range rules {
		for _, field := range rule {
			if strings.HasPrefix(field, rolePrefix) && field != roleAnchor {
				seen[field] = struct{}{}
			}
		}
	}
	roles := make([]string, 0, len(seen))
	for role := range seen {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles, nil
}

// DeleteRole 删除角色本身的策略、角色到锚点的链接以及用户到该角色的绑定。
func (s *Service) DeleteRole(role string) error {
	name, err := NormalizeRole(role)
	if err != nil {
		return err
	}
	if name == roleAnchor {
		return fmt.Errorf("reserved role is not allowed")
	}
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.enforcer.RemoveFilteredPolicy(0, name); err != nil {
		return fmt.Errorf("remove role policy: %w", err)
	}
	if _, err := s.enforcer.RemoveFilteredNamedGroupingPolicy("g", 0, name); err != nil {
		return fmt.Errorf("remove role link: %w", err)
	}
	if _, err := s.enforcer.RemoveFilteredNamedGroupingPolicy("g", 1, name); err != nil {
		return fmt.Errorf("remove role binding: %w", err)
	}
	return nil
}

// GrantRolePolicy 为角色授予对资源路径的动作许可，角色不存在时自动建立。
func (s *Service) GrantRolePolicy(role, object, action string) error {
	name, err := s.EnsureRole(role)
	if err != nil {
		return err
	}
	act := NormalizeAction(action)
	if act == "" {
		return fmt.Errorf("action is required")
	}
	if _, err := s.enforcer.AddPolicy(name, NormalizeObject(object), act); err != nil {
		return fmt.Errorf("grant policy: %w", err)
	}
	return nil
}

// RevokeRolePolicy 撤销角色的一条许可。
func (s *Service) RevokeRolePolicy(role, object, action string) error {
	name, err := NormalizeRole(role)
	if err != nil {
		return err
	}
	act := NormalizeAction(action)
	if act == "" {
		return fmt.Errorf("action is required")
	}
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.enforcer.RemovePolicy(name, NormalizeObject(object), act); err != nil {
		return fmt.Errorf("revoke policy: %w", err)
	}
	return nil
}

// GetRolePolicies 查询角色名下的全部策略。
func (s *Service) GetRolePolicies(role string) ([]Policy, error) {
	name, err := NormalizeRole(role)
	if err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	rules, err := s.enforcer.GetFilteredPolicy(0, name)
	if err != nil {
		return nil, fmt.Errorf("get role policies: %w", err)
	}
	return toPolicies(rules), nil
}

// SetUserRoles 覆盖式设置用户的角色绑定，传空切片即清空。
func (s *Service) SetUserRoles(userID uint, roles []string) error {
	if userID == 0 {
		return fmt.Errorf("user id is required")
	}
	if err := s.ready(); err != nil {
		return err
	}
	subject := SubjectForUser(userID)
	if _, err := s.enforcer.RemoveFilteredNamedGroupingPolicy("g", 0, subject); err != nil {
		return fmt.Errorf("clear user roles: %w", err)
	}
	for _, role := range roles {
		name, err := s.EnsureRole(role)
		if err != nil {
			return err
		}
		if _, err := s.enforcer.AddNamedGroupingPolicy("g", subject, name); err != nil {
			return fmt.Errorf("bind user role: %w", err)
		}
	}
	return nil
}

// GetUserRoles 查询用户绑定的角色，按名称排序。
func (s *Service) GetUserRoles(userID uint) ([]string, error) {
	if userID == 0 {
		return nil, fmt.Errorf("user id is required")
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	bound, err := s.enforcer.GetRolesForUser(SubjectForUser(userID))
	if err != nil {
		return nil, fmt.Errorf("get user roles: %w", err)
	}
	roles := make([]string, 0, len(bound))
	for _, role := range bound {
		if strings.HasPrefix(role, rolePrefix) && role != roleAnchor {
			roles = append(roles, role)
		}
	}
	sort.Strings(roles)
	return roles, nil
}

// GetUserPolicies 汇总用户的生效策略：直连策略加上各角色继承的策略，去重排序。
func (s *Service) GetUserPolicies(userID uint) ([]Policy, error) {
	if userID == 0 {
		return nil, fmt.Errorf("user id is required")
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	merged := map[string]Policy{}
	collect := func(subject string) error {
		rules, err := s.enforcer.GetFilteredPolicy(0, subject)
		if err != nil {
			return fmt.Errorf("get policies of %s: %w", subject, err)
		}
		for _, p := range toPolicies(rules) {
			merged[p.Subject+"|"+p.Object+"|"+p.Action] = p
		}
		return nil
	}

	if err := collect(SubjectForUser(userID)); err != nil {
		return nil, err
	}
	roles, err := s.GetUserRoles(userID)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		if err := collect(role); err != nil {
			return nil, err
		}
	}

	result := make([]Policy, 0, len(merged))
	for _, p := range merged {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Subject != result[j].Subject {
			return result[i].Subject < result[j].Subject
		}
		if result[i].Object != result[j].Object {
			return result[i].Object < result[j].Object
		}
		return result[i].Action < result[j].Action
	})
	return result, nil
}

func toPolicies(rules [][]string) []Policy {
	policies := make([]Policy, 0, len(rules))
	for _, rule := range rules {
		if len(rule) < 3 {
			continue
		}
		policies = append(policies, Policy{
			Subject: strings.TrimSpace(rule[0]),
			Object:  NormalizeObject(rule[1]),
			Action:  NormalizeAction(rule[2]),
		})
	}
	return policies
}

// SubjectForUser 生成用户在策略表中的主体标识。
func SubjectForUser(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

// NormalizeRole 规范化角色名：去空白、空格转下划线、补 role: 前缀。
func NormalizeRole(role string) (string, error) {
	name := strings.ReplaceAll(strings.TrimSpace(role), " ", "_")
	if name == "" {
		return "", fmt.Errorf("role is required")
	}
	if !strings.HasPrefix(name, rolePrefix) {
		name = rolePrefix + name
	}
	if len(name) == len(rolePrefix) {
		return "", fmt.Errorf("role is required")
	}
	return name, nil
}

// NormalizeObject 规范化资源路径：补前导斜杠并剥掉 /api/v1 前缀，
// 让策略对 API 版本前缀不敏感。
func NormalizeObject(object string) string {
	path := strings.TrimSpace(object)
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if path == apiV1Prefix {
		return "/"
	}
	if strings.HasPrefix(path, apiV1Prefix+"/") {
		return strings.TrimPrefix(path, apiV1Prefix)
	}
	return path
}

// NormalizeAction 动作统一成大写的 HTTP 方法。
func NormalizeAction(action string) string {
	return strings.ToUpper(strings.TrimSpace(action))
}
