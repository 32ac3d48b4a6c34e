package api

import "github.com/gin-gonic/gin"

// RegisterHandlers 註冊所有路由
// 路徑統一帶尾斜線，和前端既有的呼叫習慣一致
func RegisterHandlers(router gin.IRouter, impl *ServerImpl) {
	router.POST("/register/", impl.PostRegister)
	router.POST("/user/register/", impl.PostUserRegister)
	router.DELETE("/user/me/", impl.DeleteUserMe)

	router.GET("/profiles/", impl.GetProfiles)
	router.GET("/profiles/me/", impl.GetProfileMe)
	router.POST("/profiles/me/avatar/", impl.PostProfileMeAvatar)
	router.GET("/profiles/:profileID/", impl.GetProfile)
	router.POST("/profiles/:profileID/follow_bill/", impl.PostProfileFollowBill)
	router.POST("/profiles/:profileID/unfollow_bill/", impl.PostProfileUnfollowBill)

	router.POST("/bills/", impl.PostBill)
	router.GET("/bills/", impl.GetBills)
	router.GET("/bills/:billID/", impl.GetBill)
	router.PATCH("/bills/:billID/stage/", impl.PatchBillStage)
	router.GET("/bills/:billID/events/", impl.GetBillEvents)

	router.POST("/admin/migration/run/", impl.PostAdminMigrationRun)
	router.GET("/admin/migration/parity/", impl.GetAdminMigrationParity)
	router.POST("/admin/migration/retire/", impl.PostAdminMigrationRetire)
}
