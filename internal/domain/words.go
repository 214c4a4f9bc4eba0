package domain

// DefaultWords 是内置的默认词库，共 100 个常见的可画词。
// 每个房间创建时会把它拷贝一份作为房间词库的初始内容，
// 房主可以通过词库上传接口追加新词。
var DefaultWords = []string{
	// 动物
	"猫", "狗", "大象", "长颈鹿", "熊猫", "兔子", "老虎", "狮子", "猴子", "企鹅",
	"乌龟", "金鱼", "蝴蝶", "螃蟹", "章鱼", "蜗牛", "孔雀", "袋鼠", "刺猬", "鲨鱼",
	// 食物
	"苹果", "香蕉", "西瓜", "葡萄", "草莓", "蛋糕", "面条", "饺子", "汉堡", "冰淇淋",
	"披萨", "玉米", "胡萝卜", "棒棒糖", "爆米花",
	// 自然
	"太阳", "月亮", "星星", "彩虹", "闪电", "雪人", "云朵", "火山", "沙漠", "瀑布",
	"海浪", "竹子", "仙人掌", "向日葵", "蘑菇",
	// 交通工具
	"汽车", "火车", "飞机", "轮船", "自行车", "火箭", "地铁", "热气球", "摩托车", "救护车",
	// 职业
	"医生", "警察", "老师", "厨师", "消防员", "宇航员", "护士", "画家", "歌手", "魔术师",
	// 日常物品
	"雨伞", "眼镜", "手机", "电脑", "钥匙", "剪刀", "牙刷", "台灯", "枕头", "书包",
	"风筝", "气球", "蜡烛", "闹钟", "口罩", "帽子", "手套", "梳子", "镜子", "灯笼",
	// 运动娱乐
	"篮球", "足球", "游泳", "跳绳", "滑板", "钓鱼", "吉他", "钢琴", "象棋", "风车",
}
