package admin

import (
	"strconv"

	"github.com/expertmarket/settlement/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GrantRolePolicyRequest 角色策略授予请求
type GrantRolePolicyRequest struct {
	Role   string `json:"role" binding:"required"`
	Object string `json:"object" binding:"required"`
	Action string `json:"action" binding:"required"`
}

// SetUserRolesRequest 用户角色设置请求
type SetUserRolesRequest struct {
	Roles []string `json:"roles"`
}

// ListRoles 查询全部角色
func (h *Handler) ListRoles(c *gin.Context) {
	roles, err := h.AuthzService.ListRoles()
	if err != nil {
		respondError(c, response.CodeInternal, "role list failed", err)
		return
	}
	response.Success(c, roles)
}

// GrantRolePolicy 为角色授予策略
func (h *Handler) GrantRolePolicy(c *gin.Context) {
	var req GrantRolePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	if err := h.AuthzService.GrantRolePolicy(req.Role, req.Object, req.Action); err != nil {
		respondError(c, response.CodeBadRequest, "grant role policy failed", err)
		return
	}
	response.Success(c, nil)
}

// RevokeRolePolicy 撤销角色策略
func (h *Handler) RevokeRolePolicy(c *gin.Context) {
	var req GrantRolePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	if err := h.AuthzService.RevokeRolePolicy(req.Role, req.Object, req.Action); err != nil {
		respondError(c, response.CodeBadRequest, "revoke role policy failed", err)
		return
	}
	response.Success(c, nil)
}

// SetUserRoles 覆盖设置用户角色
func (h *Handler) SetUserRoles(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || userID == 0 {
		respondError(c, response.CodeBadRequest, "invalid user id", err)
		return
	}
	var req SetUserRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	if err := h.AuthzService.SetUserRoles(uint(userID), req.Roles); err != nil {
		respondError(c, response.CodeBadRequest, "set user roles failed", err)
		return
	}
	response.Success(c, nil)
}

// DeleteRole 删除角色及其全部策略与用户绑定
func (h *Handler) DeleteRole(c *gin.Context) {
	role := c.Param("role")
	if err := h.AuthzService.DeleteRole(role); err != nil {
		respondError(c, response.CodeBadRequest, "delete role failed", err)
		return
	}
	response.Success(c, nil)
}

// GetRolePolicies 查询角色名下策略
func (h *Handler) GetRolePolicies(c *gin.Context) {
	policies, err := h.AuthzService.GetRolePolicies(c.Param("role"))
	if err != nil {
		respondError(c, response.CodeBadRequest, "get role policies failed", err)
		return
	}
	response.Success(c, policies)
}

// GetUserPolicies 查询用户生效策略（直连 + 角色继承）
func (h *Handler) GetUserPolicies(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || userID == 0 {
		respondError(c, response.CodeBadRequest, "invalid user id", err)
		return
	}
	policies, err := h.AuthzService.GetUserPolicies(uint(userID))
	if err != nil {
		respondError(c, response.CodeInternal, "get user policies failed", err)
		return
	}
	response.Success(c, policies)
}

// GetUserRoles 查询用户角色
func (h *Handler) GetUserRoles(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || userID == 0 {
		respondError(c, response.CodeBadRequest, "invalid user id", err)
		return
	}
	roles, err := h.AuthzService.GetUserRoles(uint(userID))
	if err != nil {
		respondError(c, response.CodeInternal, "get user roles failed", err)
		return
	}
	response.Success(c, roles)
}
